package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/services/dispatch"
	"github.com/BearBump/PassportDesk/internal/services/pending"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type stationHTTPOpts struct {
	httpAddr string
	onListen func(httpAddr string)
	prime    func()

	st *station
}

type scanRequest struct {
	Raw string `json:"raw"`
}

type dispatchRequest struct {
	ToStatus models.Status     `json:"to_status"`
	Metadata map[string]string `json:"metadata"`
}

type dispatchResponse struct {
	Submitted   int                  `json:"submitted"`
	Succeeded   int                  `json:"succeeded"`
	Failed      int                  `json:"failed"`
	FailedItems []models.ScannedItem `json:"failed_items,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type queueResponse struct {
	Items    []models.ScannedItem `json:"items"`
	InFlight bool                 `json:"in_flight"`
	Form     map[string]string    `json:"form"`
}

func runStationHTTPServer(ctx context.Context, opts stationHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = "127.0.0.1:8090"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newStationRouter(opts), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	opts.st.logger.Info("operator HTTP listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newStationRouter(opts stationHTTPOpts) http.Handler {
	st := opts.st
	prime := func() {
		if opts.prime != nil {
			opts.prime()
		}
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/queue", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, queueResponse{
			Items:    st.queue.Items(),
			InFlight: st.reconciler.InFlight(),
			Form:     st.reconciler.Form().Values(),
		})
	})

	r.Post("/scan", func(w http.ResponseWriter, r *http.Request) {
		prime()
		var req scanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		item, err := st.queue.Enqueue(r.Context(), req.Raw)
		switch {
		case err == nil:
			writeJSON(w, http.StatusCreated, item)
		case errors.Is(err, pending.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, pending.ErrDuplicate):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
	})

	r.Delete("/queue/{id}", func(w http.ResponseWriter, r *http.Request) {
		err := st.queue.Remove(r.Context(), chi.URLParam(r, "id"))
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, pending.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
	})

	r.Post("/dispatch", func(w http.ResponseWriter, r *http.Request) {
		prime()
		var req dispatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		st.reconciler.Form().SetAll(req.Metadata)

		out, err := st.reconciler.Submit(r.Context(), models.Status(strings.ToUpper(strings.TrimSpace(string(req.ToStatus)))))
		resp := dispatchResponse{
			Submitted:   out.Submitted,
			Succeeded:   out.Succeeded,
			Failed:      out.Failed,
			FailedItems: out.FailedItems,
		}
		if err != nil {
			resp.Error = err.Error()
		}
		writeJSON(w, dispatchStatus(err), resp)
	})

	return r
}

func dispatchStatus(err error) int {
	switch {
	case err == nil, errors.Is(err, dispatch.ErrPartialFailure):
		return http.StatusOK
	case errors.Is(err, dispatch.ErrValidation), errors.Is(err, dispatch.ErrEmptyQueue):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrDispatchInFlight):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrNetworkFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
