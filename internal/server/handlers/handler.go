package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Response is what a HandlerFunc wants written back. Data is encoded as JSON;
// a nil Data sends the status code alone.
type Response struct {
	Code int
	Data any
}

type HandlerFunc func(ctx *Context, w http.ResponseWriter, r *http.Request) (Response, error)

func (ctx *Context) ServeHTTP(handler HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response, err := handler(ctx, w, r)
		if err != nil {
			log := Logger(r).WithField("code", response.Code)
			if response.Code >= http.StatusInternalServerError {
				log.Errorf("handler error: %v", err)
			} else {
				log.Warnf("request rejected: %v", err)
			}
		}

		if ctx.metrics != nil {
			ctx.metrics.Request(strconv.Itoa(response.Code))
		}

		if response.Data == nil {
			w.WriteHeader(response.Code)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(response.Code)
		if err := json.NewEncoder(w).Encode(response.Data); err != nil {
			logrus.Errorf("error encoding response: %v", err)
		}
	}
}
