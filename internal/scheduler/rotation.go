package scheduler

// rotateTopics selects the topic window for the given hour. Topics are
// partitioned into fixed windows of size per; the hour walks the windows
// round-robin so every topic is covered across a day.
func rotateTopics(topics []string, per, hour int) []string {
	if len(topics) == 0 || per < 1 {
		return nil
	}
	if per >= len(topics) {
		return topics
	}

	windows := (len(topics) + per - 1) / per
	start := (hour % windows) * per
	end := start + per
	if end > len(topics) {
		end = len(topics)
	}
	return topics[start:end]
}

// rotateProviders returns the provider set for the given minute: the full
// stable tier plus one optional provider, cycled every ten minutes so the
// optional tier shares the rate-limit budget.
func rotateProviders(stable, optional []string, minute int) []string {
	out := make([]string, 0, len(stable)+1)
	out = append(out, stable...)
	if len(optional) > 0 {
		out = append(out, optional[(minute/10)%len(optional)])
	}
	return out
}
