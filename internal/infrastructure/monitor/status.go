package monitor

import "time"

type Status struct {
	PostgreSQL bool      `json:"postgresql"`
	Redis      bool      `json:"redis"`
	EventBus   bool      `json:"event_bus"`
	LastCheck  time.Time `json:"last_check"`
}
