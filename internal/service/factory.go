package service

import (
	"basegraph.app/synapse/internal/queue"
	"basegraph.app/synapse/internal/store"
)

type Services struct {
	stores   *store.Stores
	txRunner TxRunner
	producer queue.Producer
	pipeline QueryPipeline
}

func NewServices(stores *store.Stores, txRunner TxRunner, producer queue.Producer, pipeline QueryPipeline) *Services {
	return &Services{
		stores:   stores,
		txRunner: txRunner,
		producer: producer,
		pipeline: pipeline,
	}
}

func (s *Services) Extract() ExtractService {
	return NewExtractService(s.stores.IngestRuns(), s.txRunner, s.producer)
}

func (s *Services) Query() QueryService {
	return NewQueryService(s.pipeline)
}
