package coordinator

import (
	"context"
	"errors"

	"termslens/internal/domain"
	"termslens/internal/messaging"
	"termslens/internal/services/assistant"
)

// Register installs the coordinator's actions on bus.
func (s *Service) Register(bus *messaging.Bus) {
	bus.Handle(messaging.TargetCoordinator, messaging.ActionSite, s.handleSite)
	bus.Handle(messaging.TargetCoordinator, messaging.ActionRescan, s.handleRescan)
	bus.Handle(messaging.TargetCoordinator, messaging.ActionAnalyze, s.handleAnalyze)
	bus.Handle(messaging.TargetCoordinator, messaging.ActionAsk, s.handleAsk)
	bus.Handle(messaging.TargetCoordinator, messaging.ActionInvalidate, s.handleInvalidate)
	bus.Handle(messaging.TargetCoordinator, messaging.ActionCategories, s.handleCategories)
}

func (s *Service) handleSite(ctx context.Context, req messaging.Request) (any, error) {
	var in messaging.SiteRequest
	if err := messaging.Decode(req, &in); err != nil {
		return nil, err
	}
	a, err := s.Current(ctx, in.URL)
	if err != nil && !errors.Is(err, domain.ErrCacheUnavailable) {
		return nil, err
	}
	return s.View(a), nil
}

func (s *Service) handleRescan(ctx context.Context, req messaging.Request) (any, error) {
	var in messaging.RescanRequest
	if err := messaging.Decode(req, &in); err != nil {
		return nil, err
	}
	out, err := s.Rescan(ctx, ScanInput{URL: in.URL, Hint: in.Hint, Page: in.Page, Wait: in.Wait})
	if err != nil {
		return nil, err
	}
	return s.RescanResponse(out), nil
}

func (s *Service) handleAnalyze(ctx context.Context, req messaging.Request) (any, error) {
	var in messaging.AnalyzeRequest
	if err := messaging.Decode(req, &in); err != nil {
		return nil, err
	}
	out, err := s.Analyze(ctx, in.URL, in.Hint, in.Scan, in.Wait)
	if err != nil {
		return nil, err
	}
	return s.RescanResponse(out), nil
}

func (s *Service) handleAsk(ctx context.Context, req messaging.Request) (any, error) {
	var in messaging.AskRequest
	if err := messaging.Decode(req, &in); err != nil {
		return nil, err
	}
	return s.Ask(ctx, in.URL, in.Question)
}

func (s *Service) handleInvalidate(ctx context.Context, req messaging.Request) (any, error) {
	var in messaging.SiteRequest
	if err := messaging.Decode(req, &in); err != nil {
		return nil, err
	}
	a, err := s.Invalidate(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	return s.View(a), nil
}

func (s *Service) handleCategories(context.Context, messaging.Request) (any, error) {
	return s.Categories(), nil
}

// RescanResponse renders an Outcome for surfaces; finished analyses carry
// the opening summary.
func (s *Service) RescanResponse(out Outcome) messaging.RescanResponse {
	resp := messaging.RescanResponse{Started: out.Started, Record: s.View(out.Record)}
	if out.Done && out.Record.Status == domain.StatusAnalyzed {
		resp.Summary = assistant.Summarize(out.Record)
	}
	return resp
}
