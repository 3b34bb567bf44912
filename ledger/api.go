package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/alovak/cardledger/internal/cardgen"
	"github.com/go-chi/chi/v5"
)

// Pinger reports store readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API is a HTTP health API for the ledger
type API struct {
	store        Pinger
	readyTimeout time.Duration
}

func NewAPI(store Pinger) *API {
	return &API{
		store:        store,
		readyTimeout: 2 * time.Second,
	}
}

type cardCheck struct {
	Number string `json:"number"`
	Valid  bool   `json:"valid"`
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Get("/-/live", a.live)
	r.Get("/-/ready", a.ready)
	r.Get("/cards/{number}/check", a.checkCard)
}

func (a *API) live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.readyTimeout)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		http.Error(w, "store not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) checkCard(w http.ResponseWriter, r *http.Request) {
	number := cardgen.NormalizePAN(chi.URLParam(r, "number"))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(cardCheck{
		Number: cardgen.MaskPAN(number),
		Valid:  cardgen.IsValid(number),
	})
}
