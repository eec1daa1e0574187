package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const RequestIDHeader = "X-Request-ID"

type requestKey struct{}

type requestInfo struct {
	id  string
	log *logrus.Entry
}

// RequestID tags every request with a locally generated identifier and a logger
// carrying it. An X-Request-ID sent by the caller is only logged, as client_request_id,
// and only when it is a valid UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		fields := logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		}
		if clientID, err := uuid.Parse(r.Header.Get(RequestIDHeader)); err == nil {
			fields["client_request_id"] = clientID.String()
		}

		info := &requestInfo{id: id, log: logrus.WithFields(fields)}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestKey{}, info)))
	})
}

// GetRequestID returns the identifier RequestID assigned to r, or "" outside of it.
func GetRequestID(r *http.Request) string {
	if info, ok := r.Context().Value(requestKey{}).(*requestInfo); ok {
		return info.id
	}
	return ""
}

// Logger returns the request scoped logger.
func Logger(r *http.Request) *logrus.Entry {
	if info, ok := r.Context().Value(requestKey{}).(*requestInfo); ok {
		return info.log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
