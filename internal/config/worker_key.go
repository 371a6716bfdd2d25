package config

type WorkerKeyStruct struct {
	PersistResultsQueue string
	ResultsDeadLetter   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue: "persist_results_queue",
	ResultsDeadLetter:   "persist_results_dead_letter",
}
