package sync

import (
	"context"

	"github.com/calebhart/simdash/internal/api"
	"github.com/calebhart/simdash/internal/stream"
)

// EngineAPI is the pull transport the client depends on. *api.Client
// satisfies it.
type EngineAPI interface {
	ListSimulations(ctx context.Context) ([]api.SimulationSummary, error)
	GetSimulation(ctx context.Context, id string) (*api.SimulationDetail, error)
	CreateSimulation(ctx context.Context, req api.CreateSimulationRequest) (*api.SimulationDetail, error)
	StartSimulation(ctx context.Context, id string) (*api.SimulationDetail, error)
	AdvanceSimulation(ctx context.Context, id string) (*api.PhaseAdvanceResult, error)
	InjectAction(ctx context.Context, id string, req api.InjectActionRequest) (*api.SimulationDetail, error)
	AddActor(ctx context.Context, id string, req api.AddActorRequest) (*api.SimulationDetail, error)
	DeleteSimulation(ctx context.Context, id string) error
}

// StreamConn is one open push channel.
type StreamConn interface {
	Events() <-chan api.StreamEvent
	Err() error
	Close()
}

// StreamOpener establishes push channels scoped to one simulation id. A
// returned conn must close its Events channel once ctx is cancelled.
type StreamOpener interface {
	Open(ctx context.Context, simulationID string) (StreamConn, error)
}

// NewStreamOpener adapts a *stream.Subscriber to the StreamOpener interface.
func NewStreamOpener(s *stream.Subscriber) StreamOpener {
	return subscriberOpener{s: s}
}

type subscriberOpener struct {
	s *stream.Subscriber
}

func (o subscriberOpener) Open(ctx context.Context, simulationID string) (StreamConn, error) {
	conn, err := o.s.Open(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
