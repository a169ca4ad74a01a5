package server

import (
	"net/http"

	"github.com/cspline/activationsrv/internal/common/httpx"
)

// ServiceName identifies the service in the health response.
const ServiceName = "CSpline Activation Server"

type healthRsp struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func healthHandler(_ *http.Request) (*httpx.Response, error) {
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: healthRsp{
			Status:  "healthy",
			Service: ServiceName,
		},
	}, nil
}
