package ports

import "time"

type Policy struct {
	MaxQueueLen      int           `yaml:"max_queue_len"`
	BackpressurePoll time.Duration `yaml:"backpressure_poll"`
	IdleSleep        time.Duration `yaml:"idle_sleep"`
	NoDataWarnLimit  int           `yaml:"no_data_warn_limit"`
	StatsEveryChunks int           `yaml:"stats_every_chunks"`
}
