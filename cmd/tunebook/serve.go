package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/ceol/tunebook-go/internal/favorites"
	"github.com/ceol/tunebook-go/internal/tunedata"
)

var (
	serveAddr      string
	dynamoTable    string
	dynamoRegion   string
	dynamoEndpoint string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tune lookup, search and favorites over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().StringVar(&dynamoTable, "dynamo-table", "", "DynamoDB table for favorites (omit to disable)")
	serveCmd.Flags().StringVar(&dynamoRegion, "dynamo-region", "us-east-1", "DynamoDB region")
	serveCmd.Flags().StringVar(&dynamoEndpoint, "dynamo-endpoint", "", "DynamoDB endpoint override (dynamodb-local)")
	rootCmd.AddCommand(serveCmd)
}

// server bundles the HTTP handlers' collaborators.
type server struct {
	catalogue *tunedata.Catalogue // nil when serving from The Session
	session   *tunedata.Client
	store     *favorites.Store // nil when favorites are disabled
	saver     *favorites.Saver
}

func runServe(cmd *cobra.Command, args []string) error {
	s := &server{session: tunedata.NewClient(sessionBase, nil)}

	if cataloguePath != "" {
		f, err := os.Open(cataloguePath)
		if err != nil {
			return fmt.Errorf("open catalogue: %w", err)
		}
		cat, err := tunedata.LoadCatalogue(f)
		f.Close()
		if err != nil {
			return err
		}
		s.catalogue = cat
		log.Printf("catalogue loaded: %d tunes", cat.Len())
	}
	if dynamoTable != "" {
		store, err := favorites.New(dynamoTable, dynamoRegion, dynamoEndpoint)
		if err != nil {
			return err
		}
		s.store = store
		s.saver = favorites.NewSaver(store, time.Second, func(err error) {
			log.Printf("preference save: %v", err)
		})
	}

	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/tunes/search", s.handleSearch).Methods("GET")
	router.HandleFunc("/tunes/{id}", s.handleTune).Methods("GET")
	if s.store != nil {
		router.HandleFunc("/users/{user}/favorites/{category}", s.handleGetFavorites).Methods("GET")
		router.HandleFunc("/users/{user}/favorites/{category}/{id}", s.handleAddFavorite).Methods("PUT")
		router.HandleFunc("/users/{user}/favorites/{category}/{id}", s.handleRemoveFavorite).Methods("DELETE")
		router.HandleFunc("/users/{user}/tunes/{tune}/preferences", s.handleGetPreferences).Methods("GET")
		router.HandleFunc("/users/{user}/tunes/{tune}/preferences", s.handlePutPreferences).Methods("PUT")
	}

	log.Printf("listening on %s", serveAddr)
	return http.ListenAndServe(serveAddr, cors.Default().Handler(router))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *server) handleTune(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var tune *tunedata.Tune
	var err error
	if s.catalogue != nil {
		tune, err = s.catalogue.LookupByID(id)
	} else {
		tune, err = s.session.Tune(r.Context(), id)
	}
	if errors.Is(err, tunedata.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, tune)
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	var tunes []*tunedata.Tune
	var err error
	if s.catalogue != nil {
		tunes = s.catalogue.Search(q)
	} else {
		tunes, err = s.session.Search(r.Context(), q)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if tunes == nil {
		tunes = []*tunedata.Tune{}
	}
	writeJSON(w, tunes)
}

func (s *server) handleGetFavorites(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ids, err := s.store.GetFavorites(vars["user"], vars["category"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, ids)
}

func (s *server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.AddFavorite(vars["user"], vars["id"], vars["category"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.RemoveFavorite(vars["user"], vars["id"], vars["category"]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ids, err := s.store.GetPreferences(vars["user"], vars["tune"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, ids)
}

// handlePutPreferences accepts the ordered setting ids for one tune.
// Writes go through the debounced saver: reorder drags arrive in
// bursts, and only the settled order needs to hit the store.
func (s *server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var orderedIDs []string
	if err := json.NewDecoder(r.Body).Decode(&orderedIDs); err != nil {
		http.Error(w, "malformed preferences body", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	s.saver.Save(vars["user"], vars["tune"], orderedIDs)
	w.WriteHeader(http.StatusAccepted)
}
