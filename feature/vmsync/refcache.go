package vmsync

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"vmsync/core/netbox"

	"go.uber.org/zap"
)

// refCache is the run-scoped lookup of platform-name to id and cluster-name
// to id. It is lazily populated from the mirror on first use, auto-creates
// platforms on miss, and lives exactly as long as one Run: it is built by
// the reconciler and passed through the reconciliation calls, never shared
// across invocations.
type refCache struct {
	mirror Mirror
	log    *zap.Logger
	dryRun bool

	platforms       map[string]int
	platformsLoaded bool

	clusters       map[string]int
	clustersLoaded bool
}

func newRefCache(mirror Mirror, log *zap.Logger, dryRun bool) *refCache {
	return &refCache{
		mirror:    mirror,
		log:       log,
		dryRun:    dryRun,
		platforms: map[string]int{},
		clusters:  map[string]int{},
	}
}

// ClusterID resolves a cluster name to its mirror id. Clusters are
// pre-existing: a missing name is an error and the caller skips the VM.
func (r *refCache) ClusterID(ctx context.Context, name string) (int, error) {
	if !r.clustersLoaded {
		clusters, err := r.mirror.ListClusters(ctx)
		if err != nil {
			return 0, err
		}
		for _, c := range clusters {
			r.clusters[c.Name] = c.ID
		}
		r.clustersLoaded = true
	}

	id, ok := r.clusters[name]
	if !ok {
		return 0, fmt.Errorf("cluster %q does not exist in the mirror inventory", name)
	}
	return id, nil
}

// PlatformID resolves a guest OS name to a platform id, creating the
// platform on first miss. A given OS name is created at most once per run;
// if creation fails the name resolves to 0 (no platform) for the rest of
// the run.
func (r *refCache) PlatformID(ctx context.Context, osName string) (int, error) {
	if osName == "" {
		return 0, nil
	}

	if !r.platformsLoaded {
		platforms, err := r.mirror.ListPlatforms(ctx)
		if err != nil {
			return 0, err
		}
		for _, p := range platforms {
			r.platforms[p.Name] = p.ID
		}
		r.platformsLoaded = true
	}

	if id, ok := r.platforms[osName]; ok {
		return id, nil
	}

	if r.dryRun {
		r.log.Info("planned write (dry-run): create platform", zap.String("platform", osName))
		r.platforms[osName] = 0
		return 0, nil
	}

	platform, err := r.mirror.CreatePlatform(ctx, netbox.PlatformRequest{
		Name: osName,
		Slug: Slugify(osName),
	})
	if err != nil {
		// Remember the failure so the name is not re-attempted this run.
		r.platforms[osName] = 0
		return 0, err
	}

	r.log.Info("created platform",
		zap.String("platform", osName),
		zap.Int("id", platform.ID))
	r.platforms[osName] = platform.ID

	return platform.ID, nil
}

// Slugify derives a platform slug from an OS name: lowercase, whitespace
// collapsed to "-", and the characters . ( ) / stripped.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = strings.NewReplacer(".", "", "(", "", ")", "", "/", "").Replace(s)
	return strings.Join(strings.Fields(s), "-")
}

// ClusterOverride places machines running on matching hypervisor hosts into
// a specific mirror cluster regardless of their nominal one. The table is
// site policy and comes from configuration, first match wins.
type ClusterOverride struct {
	Pattern *regexp.Regexp
	Cluster string
}

// ParseClusterOverrides parses the "host-regex=cluster" pairs of the
// SYNC_CLUSTER_OVERRIDES setting. An invalid pattern fails the run at
// startup rather than silently matching nothing.
func ParseClusterOverrides(s string) ([]ClusterOverride, error) {
	var overrides []ClusterOverride
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		pattern, cluster, ok := strings.Cut(pair, "=")
		if !ok || cluster == "" {
			return nil, fmt.Errorf("cluster override %q is not of the form host-regex=cluster", pair)
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("cluster override %q: %w", pair, err)
		}

		overrides = append(overrides, ClusterOverride{Pattern: re, Cluster: cluster})
	}

	return overrides, nil
}

// overrideCluster returns the cluster a machine belongs to after applying
// the override table to its host name.
func overrideCluster(nominal, host string, overrides []ClusterOverride) string {
	if host != "" {
		for _, o := range overrides {
			if o.Pattern.MatchString(host) {
				return o.Cluster
			}
		}
	}
	return nominal
}
