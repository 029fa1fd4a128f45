package subscription

// Completeness computes the authoritative missing-episode list for a series
// subscription. The library host may supply its own implementation; the
// default derives it from the tracked totals.
type Completeness interface {
	MissingEpisodes(sub *Subscription) []int
}

// TotalsCompleteness is the default calculator: every episode from the start
// floor through the tracked total that is not in the known-downloaded set.
type TotalsCompleteness struct{}

func (TotalsCompleteness) MissingEpisodes(sub *Subscription) []int {
	if sub == nil || sub.TotalEpisodes <= 0 {
		return nil
	}
	start := sub.StartEpisode
	if start < 1 {
		start = 1
	}
	downloaded := make(map[int]struct{}, len(sub.Downloaded))
	for _, episode := range sub.Downloaded {
		downloaded[episode] = struct{}{}
	}

	var missing []int
	for episode := start; episode <= sub.TotalEpisodes; episode++ {
		if _, ok := downloaded[episode]; !ok {
			missing = append(missing, episode)
		}
	}
	return missing
}
