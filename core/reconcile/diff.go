package reconcile

// Match pairs a source record with the mirror record that shares its
// identity key.
type Match[S, M any] struct {
	Source S
	Mirror M
}

// Plan is the result of partitioning one entity class. Creates holds source
// records with no mirror counterpart, Deletes holds mirror records with no
// source counterpart, and Pairs holds matched records still to be diffed
// field by field.
//
// Duplicates holds every mirror record whose identity key is shared by
// another mirror record. Such keys are ambiguous: none of their records
// appear in Pairs or Deletes, and the matching source record (if any) is
// withheld from Creates. Callers treat this as an identity violation and
// skip the key for the run.
type Plan[S, M any] struct {
	Creates    []S
	Deletes    []M
	Pairs      []Match[S, M]
	Duplicates []M
}

// Partition splits a source snapshot and the corresponding mirror records
// into create/delete/update sets by identity key. Ordering is preserved:
// Creates and Pairs follow source order, Deletes and Duplicates follow
// mirror order, so a plan is deterministic for a given input.
func Partition[S, M any, K comparable](src []S, mirror []M, srcKey func(S) K, mirrorKey func(M) K) Plan[S, M] {
	var plan Plan[S, M]

	counts := make(map[K]int, len(mirror))
	for _, m := range mirror {
		counts[mirrorKey(m)]++
	}

	index := make(map[K]M, len(mirror))
	for _, m := range mirror {
		k := mirrorKey(m)
		if counts[k] > 1 {
			plan.Duplicates = append(plan.Duplicates, m)
			continue
		}
		index[k] = m
	}

	matched := make(map[K]struct{}, len(src))
	for _, s := range src {
		k := srcKey(s)
		if counts[k] > 1 {
			// Ambiguous on the mirror side; do not touch the key.
			continue
		}
		if m, ok := index[k]; ok {
			plan.Pairs = append(plan.Pairs, Match[S, M]{Source: s, Mirror: m})
			matched[k] = struct{}{}
		} else {
			plan.Creates = append(plan.Creates, s)
		}
	}

	for _, m := range mirror {
		k := mirrorKey(m)
		if counts[k] > 1 {
			continue
		}
		if _, ok := matched[k]; !ok {
			plan.Deletes = append(plan.Deletes, m)
		}
	}

	return plan
}
