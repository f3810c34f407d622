package config

type WorkerKeyStruct struct {
	PersistOutcomesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistOutcomesQueue: "persist_outcomes_queue",
}
