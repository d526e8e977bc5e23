package vmsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClusterIDResolvesExistingCluster(t *testing.T) {
	mirror := newFakeMirror()
	prod := mirror.addCluster("prod")

	refs := newRefCache(mirror, zap.NewNop(), false)

	id, err := refs.ClusterID(context.Background(), "prod")
	require.NoError(t, err)
	assert.Equal(t, prod.ID, id)

	_, err = refs.ClusterID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPlatformIDReusesExistingPlatform(t *testing.T) {
	mirror := newFakeMirror()
	p := mirror.addPlatform("Ubuntu Linux (64-bit)", "ubuntu-linux-64-bit")

	refs := newRefCache(mirror, zap.NewNop(), false)

	id, err := refs.PlatformID(context.Background(), "Ubuntu Linux (64-bit)")
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)
	assert.Empty(t, mirror.writes)
}

func TestPlatformIDCreatesOnce(t *testing.T) {
	mirror := newFakeMirror()
	refs := newRefCache(mirror, zap.NewNop(), false)

	first, err := refs.PlatformID(context.Background(), "Microsoft Windows Server 2022")
	require.NoError(t, err)
	assert.NotZero(t, first)

	second, err := refs.PlatformID(context.Background(), "Microsoft Windows Server 2022")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, []string{"create platform"}, mirror.writes)
	for _, p := range mirror.platforms {
		assert.Equal(t, "microsoft-windows-server-2022", p.Slug)
	}
}

func TestPlatformIDCachesCreationFailure(t *testing.T) {
	mirror := newFakeMirror()
	mirror.fail = func(op string) error {
		if op == "create platform" {
			return errors.New("boom")
		}
		return nil
	}
	refs := newRefCache(mirror, zap.NewNop(), false)

	id, err := refs.PlatformID(context.Background(), "Debian GNU/Linux 12 (64-bit)")
	assert.Error(t, err)
	assert.Zero(t, id)

	// Same name within the run resolves to no platform without re-attempting.
	id, err = refs.PlatformID(context.Background(), "Debian GNU/Linux 12 (64-bit)")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestPlatformIDEmptyName(t *testing.T) {
	mirror := newFakeMirror()
	refs := newRefCache(mirror, zap.NewNop(), false)

	id, err := refs.PlatformID(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestPlatformIDDryRunNeverWrites(t *testing.T) {
	mirror := newFakeMirror()
	refs := newRefCache(mirror, zap.NewNop(), true)

	id, err := refs.PlatformID(context.Background(), "Ubuntu Linux (64-bit)")
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Empty(t, mirror.writes)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ubuntu Linux (64-bit)", "ubuntu-linux-64-bit"},
		{"Debian GNU/Linux 12 (64-bit)", "debian-gnulinux-12-64-bit"},
		{"Microsoft Windows Server 2022", "microsoft-windows-server-2022"},
		{"CentOS 7 (64-bit)", "centos-7-64-bit"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestParseClusterOverrides(t *testing.T) {
	overrides, err := ParseClusterOverrides("esx-edge.*=edge, ^lab-=lab")
	require.NoError(t, err)
	require.Len(t, overrides, 2)
	assert.Equal(t, "edge", overrides[0].Cluster)
	assert.Equal(t, "lab", overrides[1].Cluster)

	overrides, err = ParseClusterOverrides("")
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestParseClusterOverridesRejectsBadInput(t *testing.T) {
	_, err := ParseClusterOverrides("no-separator")
	assert.Error(t, err)

	_, err = ParseClusterOverrides("host.*=")
	assert.Error(t, err)

	_, err = ParseClusterOverrides("[broken=cluster")
	assert.Error(t, err)
}

func TestOverrideCluster(t *testing.T) {
	overrides, err := ParseClusterOverrides("esx-edge.*=edge,esx-.*=general")
	require.NoError(t, err)

	// First match wins.
	assert.Equal(t, "edge", overrideCluster("prod", "esx-edge-01", overrides))
	assert.Equal(t, "general", overrideCluster("prod", "esx-core-01", overrides))
	// No match or no host falls back to the nominal cluster.
	assert.Equal(t, "prod", overrideCluster("prod", "kvm-01", overrides))
	assert.Equal(t, "prod", overrideCluster("prod", "", overrides))
}
