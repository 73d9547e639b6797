package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tarancss/chainquery/dataquery"
	"github.com/tarancss/chainquery/discovery"
	"github.com/tarancss/chainquery/lib/fault"
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  interface{} `json:"body,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Errors returned to client requests.
var (
	ErrInternal   = errors.New("internal server error")
	ErrBadRequest = errors.New("bad request")
)

const welcome = "Hello, this is your blockchain query service!"

func statusOf(err error) int {
	switch fault.KindOf(err) {
	case fault.NotFound:
		return http.StatusNotFound
	case fault.Invalid:
		return http.StatusBadRequest
	case fault.Authentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// reply writes res, or err when not nil, to the client. Internal errors are logged and replaced by a generic message.
func (a *API) reply(rw http.ResponseWriter, r *http.Request, res *Response, err error) {
	status := http.StatusOK

	if err != nil {
		status = statusOf(err)
		res.Body = nil
		res.Error = err.Error()

		attrs := []any{slog.String("requestId", RequestIDFromContext(r.Context())),
			slog.String("uri", r.RequestURI), slog.Int("status", status), slog.Any("error", err)}

		if status == http.StatusInternalServerError {
			res.Error = ErrInternal.Error()
			a.log.Error("Request failed", attrs...)
		} else {
			a.log.Info("Request refused", attrs...)
		}
	}

	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(res)
}

// homeHandler just replies a welcome message to the client.
func (a *API) homeHandler(rw http.ResponseWriter, r *http.Request) {
	a.reply(rw, r, &Response{Body: welcome}, nil)
}

// infoHandler replies the build information.
func (a *API) infoHandler(rw http.ResponseWriter, r *http.Request) {
	a.reply(rw, r, &Response{Body: a.info}, nil)
}

// platformsHandler replies the visible platforms.
func (a *API) platformsHandler(rw http.ResponseWriter, r *http.Request) {
	a.reply(rw, r, &Response{Body: a.meta.ListPlatforms()}, nil)
}

// networksHandler replies the visible networks of a platform.
func (a *API) networksHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { a.reply(rw, r, &res, err) }()

	v := mux.Vars(r)
	res.Body, err = a.meta.ListNetworks(v["platform"])
}

// entitiesHandler replies the visible entities of a network.
func (a *API) entitiesHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { a.reply(rw, r, &res, err) }()

	v := mux.Vars(r)
	res.Body, err = a.meta.ListEntities(v["platform"], v["network"])
}

// attributesHandler replies the visible attributes of an entity.
func (a *API) attributesHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { a.reply(rw, r, &res, err) }()

	v := mux.Vars(r)
	res.Body, err = a.meta.ListAttributes(v["platform"], v["network"], v["entity"])
}

// valuesHandler replies the bounded values of an attribute, filtered when the uri carries a filter.
func (a *API) valuesHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { a.reply(rw, r, &res, err) }()

	v := mux.Vars(r)
	path := discovery.Path{Platform: v["platform"], Network: v["network"], Entity: v["entity"], Attribute: v["attribute"]}
	res.Body, err = a.meta.AttributeValues(r.Context(), path, v["filter"])
}

// dataHandler runs an entity query, read from the uri query on GET and from a JSON body on POST.
func (a *API) dataHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { a.reply(rw, r, &res, err) }()

	var q dataquery.Query

	if r.Method == http.MethodPost {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()

		if err = dec.Decode(&q); err != nil {
			err = fault.New(fault.Invalid, "decode query", "", ErrBadRequest)

			return
		}
	} else if q, err = dataquery.ParseValues(r.URL.Query()); err != nil {
		return
	}

	v := mux.Vars(r)
	ref := dataquery.EntityRef{Platform: v["platform"], Network: v["network"], Entity: v["entity"]}
	res.Body, err = a.data.Run(r.Context(), ref, q)
}
