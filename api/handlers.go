package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/distribution"
	"github.com/xraph/tierledger/subscription"
	"github.com/xraph/tierledger/tier"
	"github.com/xraph/tierledger/types"
)

func (s *Server) handleListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.ledger.ListTiers(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tiers)
}

func (s *Server) handleGetTier(w http.ResponseWriter, r *http.Request) {
	tierID, ok := s.tierParam(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	t, err := s.ledger.GetTier(r.Context(), tierID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSetTier(w http.ResponseWriter, r *http.Request) {
	tierID, ok := s.tierParam(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var t tier.Tier
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	t.ID = tierID

	if err := s.ledger.SetTier(r.Context(), &t); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, &t)
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	subs, err := s.ledger.ListSubscriptions(r.Context(), subscription.ListOpts{
		ActiveOnly: q.Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.ledger.GetSubscription(r.Context(), accountParam(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleEstimatePrice(w http.ResponseWriter, r *http.Request) {
	tierID, ok := s.tierParam(w, r.URL.Query().Get("tier"))
	if !ok {
		return
	}
	est, err := s.ledger.EstimateSubscriptionPrice(r.Context(), accountParam(r), tierID, s.clock.Now())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, est)
}

type subscribeRequest struct {
	TierID  tier.ID      `json:"tier_id"`
	Payment types.Amount `json:"payment"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	receipt, err := s.ledger.Subscribe(r.Context(), accountParam(r), req.TierID, req.Payment, s.clock.Now())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	withdrawal, err := s.ledger.Unsubscribe(r.Context(), accountParam(r), s.clock.Now())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, withdrawal)
}

type profitResponse struct {
	EstimatedProfit types.Amount      `json:"estimated_profit"`
	AsOf            time.Time         `json:"as_of"`
	Stats           *tierledger.Stats `json:"stats"`
}

func (s *Server) handleProfit(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	est, err := s.ledger.EstimateProfit(r.Context(), now)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profitResponse{EstimatedProfit: est, AsOf: now.UTC(), Stats: stats})
}

func (s *Server) handleGetDistribution(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ledger.DistributionConfig(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

type distributionRequest struct {
	Recipient    types.AccountID `json:"recipient"`
	SharePercent uint16          `json:"share_percent"`
	Interval     string          `json:"interval"`
}

func (s *Server) handleSetDistribution(w http.ResponseWriter, r *http.Request) {
	var req distributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var interval time.Duration
	if req.Interval != "" {
		var err error
		if interval, err = time.ParseDuration(req.Interval); err != nil {
			s.writeError(w, http.StatusBadRequest, "interval must be a duration such as 24h")
			return
		}
	}

	if err := s.ledger.SetDistributionConfig(r.Context(), req.Recipient, req.SharePercent, interval); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.handleGetDistribution(w, r)
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	res, err := s.ledger.Distribute(r.Context(), s.clock.Now())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Pause(r.Context()); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.handleGetDistribution(w, r)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Resume(r.Context()); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.handleGetDistribution(w, r)
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, ok := s.pageParams(w, r)
	if !ok {
		return
	}
	opts := distribution.ListOpts{Limit: limit, Offset: offset}
	for key, dst := range map[string]*time.Time{"start": &opts.Start, "end": &opts.End} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, key+" must be RFC3339")
				return
			}
			*dst = t
		}
	}

	payouts, err := s.ledger.ListPayouts(r.Context(), opts)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payouts)
}

func accountParam(r *http.Request) types.AccountID {
	return types.AccountID(chi.URLParam(r, "account"))
}

func (s *Server) tierParam(w http.ResponseWriter, raw string) (tier.ID, bool) {
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "tier id must be an integer between 0 and 65535")
		return 0, false
	}
	return tier.ID(n), true
}

func (s *Server) pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for key, dst := range map[string]*int{"limit": &limit, "offset": &offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, key+" must be a non-negative integer")
			return 0, 0, false
		}
		*dst = n
	}
	return limit, offset, true
}
