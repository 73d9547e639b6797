// Package api implements the RESTful API of the query service: the metadata listings, the attribute value listings and
// the entity data queries, every one of them behind the API key check.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tarancss/chainquery/auth"
	"github.com/tarancss/chainquery/dataquery"
	"github.com/tarancss/chainquery/discovery"
	"github.com/tarancss/chainquery/lib/config"
	"github.com/tarancss/chainquery/lib/msg"
	"github.com/tarancss/chainquery/lib/store"
	"github.com/tarancss/chainquery/metadata"
)

// Metadata serves the metadata listings.
type Metadata interface {
	ListPlatforms() []metadata.Platform
	ListNetworks(p string) ([]metadata.Network, error)
	ListEntities(p, n string) ([]metadata.Entity, error)
	ListAttributes(p, n, e string) ([]metadata.Attribute, error)
	AttributeValues(ctx context.Context, path discovery.Path, filter string) ([]string, error)
}

// DataQuery runs entity queries.
type DataQuery interface {
	Run(ctx context.Context, ref dataquery.EntityRef, q dataquery.Query) ([]store.Row, error)
}

// Info is replied by /info.
type Info struct {
	Application string `json:"application"`
	Version     string `json:"version"`
	GoVersion   string `json:"goVersion,omitempty"`
}

// API contains the data necessary to deliver the service.
type API struct {
	meta Metadata
	data DataQuery
	auth *auth.Authenticator
	mb   msg.Broker
	info Info
	log  *slog.Logger
	s    *http.Server // http server
	ss   *http.Server // https server
}

// New returns the API over meta and data, authenticating requests with a and publishing usage events to mb.
func New(meta Metadata, data DataQuery, a *auth.Authenticator, mb msg.Broker, info Info, conf config.ServerConfig,
	log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}

	if mb == nil {
		mb = msg.Nop{}
	}

	api := &API{meta: meta, data: data, auth: a, mb: mb, info: info, log: log}

	r := api.Router()
	api.s = &http.Server{Handler: r, ReadTimeout: conf.ReadTimeout, WriteTimeout: conf.WriteTimeout}
	api.ss = &http.Server{Handler: r, ReadTimeout: conf.ReadTimeout, WriteTimeout: conf.WriteTimeout}

	return api
}

// Router returns the API routes. Every route but "/" requires an API key.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(a.requestID, a.instrument)
	r.HandleFunc("/", a.homeHandler)

	s := r.NewRoute().Subrouter()
	s.Use(auth.Middleware(a.auth), a.usage)
	s.HandleFunc("/info", a.infoHandler).Methods(http.MethodGet)

	m := s.PathPrefix("/v2/metadata").Subrouter()
	m.HandleFunc("/platforms", a.platformsHandler).Methods(http.MethodGet)
	m.HandleFunc("/{platform}/networks", a.networksHandler).Methods(http.MethodGet)
	m.HandleFunc("/{platform}/{network}/entities", a.entitiesHandler).Methods(http.MethodGet)
	m.HandleFunc("/{platform}/{network}/{entity}/attributes", a.attributesHandler).Methods(http.MethodGet)
	m.HandleFunc("/{platform}/{network}/{entity}/{attribute}", a.valuesHandler).Methods(http.MethodGet)
	m.HandleFunc("/{platform}/{network}/{entity}/{attribute}/{filter}", a.valuesHandler).Methods(http.MethodGet)

	s.HandleFunc("/v2/data/{platform}/{network}/{entity}", a.dataHandler).Methods(http.MethodGet, http.MethodPost)

	return r
}

// Serve accepts http requests on ln until Stop is called.
func (a *API) Serve(ln net.Listener) error {
	a.log.Info("Listening to API http requests", slog.String("addr", ln.Addr().String()))

	if err := a.s.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// ServeTLS accepts https requests on ln until Stop is called.
func (a *API) ServeTLS(ln net.Listener, certFile, keyFile string) error {
	a.log.Info("Listening to API https requests", slog.String("addr", ln.Addr().String()))

	if err := a.ss.ServeTLS(ln, certFile, keyFile); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop shuts down the http and https servers, letting in-flight requests finish until ctx is done.
func (a *API) Stop(ctx context.Context) error {
	return errors.Join(a.s.Shutdown(ctx), a.ss.Shutdown(ctx))
}
