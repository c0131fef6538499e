package ui

import "github.com/bamsammich/span/internal/event"

// quietPresenter consumes events but produces no output.
type quietPresenter struct {
	*runState
}

func (p *quietPresenter) Run(events <-chan event.Event) error {
	for ev := range events {
		p.observe(ev)
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
