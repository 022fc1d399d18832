package config

type WorkerKeyStruct struct {
	PaperEventsQueue string
	PaperEventsTopic string
}

var WorkerKey = &WorkerKeyStruct{
	PaperEventsQueue: "persist_paper_events_queue",
	PaperEventsTopic: "papers.events",
}
