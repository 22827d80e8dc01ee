// Package agent is the page-side context: it answers scan requests by
// running the content scanner over a submitted snapshot or a fetched page.
package agent

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"termslens/internal/domain"
	"termslens/internal/messaging"
	"termslens/internal/ports"
)

type Agent struct {
	scanner ports.Scanner
	pages   ports.PageSource
	log     logrus.FieldLogger
}

// New builds an agent. pages may be nil, in which case only snapshots can
// be scanned.
func New(scanner ports.Scanner, pages ports.PageSource, log logrus.FieldLogger) *Agent {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Agent{scanner: scanner, pages: pages, log: log}
}

// Register installs the agent's handlers on bus.
func (a *Agent) Register(bus *messaging.Bus) {
	bus.Handle(messaging.TargetAgent, messaging.ActionScan, a.handleScan)
}

func (a *Agent) handleScan(ctx context.Context, req messaging.Request) (any, error) {
	var in messaging.ScanRequest
	if err := messaging.Decode(req, &in); err != nil {
		return nil, err
	}
	return a.Scan(ctx, in)
}

// Scan loads the requested page, unless one was supplied, and scans it.
func (a *Agent) Scan(ctx context.Context, in messaging.ScanRequest) (domain.ScanResult, error) {
	var p domain.Page
	switch {
	case in.Page != nil:
		p = *in.Page
		if p.URL == "" {
			p.URL = in.URL
		}
	case a.pages == nil:
		return domain.ScanResult{}, domain.NewError(domain.KindScanUnavailable, "no page snapshot supplied and page loading is disabled")
	default:
		var err error
		p, err = a.pages.Fetch(ctx, in.URL)
		if err != nil {
			if !errors.Is(err, domain.ErrScanUnavailable) {
				err = domain.Wrap(domain.KindScanUnavailable, "page "+in.URL+" unavailable", err)
			}
			return domain.ScanResult{}, err
		}
	}
	res := a.scanner.Scan(p)
	a.log.WithFields(logrus.Fields{
		"url":        p.URL,
		"candidates": len(res.CandidateLinks),
		"signal":     res.PageHasTermsSignal,
	}).Debug("page scanned")
	return res, nil
}
