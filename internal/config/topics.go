package config

const (
	// TopicCatalogSync is the NSQ topic for seller catalog sync tasks.
	TopicCatalogSync = "catalog.sync"

	// TopicQCDecision is the NSQ topic for asynchronous quality-gate verdicts.
	TopicQCDecision = "qc.decision"
)
