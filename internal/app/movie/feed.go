package movie

import (
	"moviechat/internal/app/realtime"
)

// Handlers receives live catalog changes. Nil handlers are skipped.
type Handlers struct {
	OnAdded         func(Movie)
	OnRatingUpdated func(RatingUpdate)
}

// Watch subscribes h to the Public connection. The returned function removes both subscriptions.
func Watch(bus realtime.Bus, h Handlers) (stop func(), err error) {
	var subs []*realtime.Subscription
	stop = func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}

	if h.OnAdded != nil {
		sub, err := realtime.On(bus, realtime.Public, realtime.EventMovieAdded, h.OnAdded)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	if h.OnRatingUpdated != nil {
		sub, err := realtime.On(bus, realtime.Public, realtime.EventRatingUpdated, h.OnRatingUpdated)
		if err != nil {
			stop()
			return nil, err
		}
		subs = append(subs, sub)
	}

	return stop, nil
}
