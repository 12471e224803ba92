package ports

// Metric names shared by the pipeline and observability adapters.
const (
	MetricChunksAcquired   = "dnb_chunks_acquired_total"
	MetricSamplesAcquired  = "dnb_samples_acquired_total"
	MetricNoData           = "dnb_source_no_data_total"
	MetricChunksAnalyzed   = "dnb_chunks_analyzed_total"
	MetricTriggers         = "dnb_triggers_total"
	MetricEngineErrors     = "dnb_engine_errors_total"
	MetricAnalysisLatency  = "dnb_analysis_latency_seconds"
	MetricChunksPersisted  = "dnb_chunks_persisted_total"
	MetricPersistErrors    = "dnb_persist_errors_total"
	MetricBackpressureWait = "dnb_backpressure_wait_seconds"
	MetricQueueLength      = "dnb_persist_queue_length"
	MetricStimuliScheduled = "dnb_stimuli_scheduled_total"
	MetricStimuliFired     = "dnb_stimuli_fired_total"
	MetricStimuliMissed    = "dnb_stimuli_missed_total"
	MetricStimuliFailed    = "dnb_stimuli_failed_total"
	MetricStimuliCancelled = "dnb_stimuli_cancelled_total"
	MetricStimulusLateness = "dnb_stimulus_lateness_seconds"
	MetricPendingStimuli   = "dnb_pending_stimuli"
	MetricJournalDropped   = "dnb_journal_dropped_total"
	MetricRecordedBytes    = "dnb_recorded_bytes"
)
