package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/cspline/activationsrv/internal/common/httpx"
	"github.com/cspline/activationsrv/internal/licensesrv/activation"
	"github.com/cspline/activationsrv/internal/licensesrv/license"
)

type activateRsp struct {
	Success bool           `json:"success"`
	Token   *license.Token `json:"token"`
}

func (s *Server) activateHandler(r *http.Request) (*httpx.Response, error) {
	req := &activation.Request{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	req.SourceAddress = clientAddress(r)
	req.ClientAgent = r.UserAgent()

	token, err := s.orchestrator.Activate(r.Context(), req)
	if err != nil {
		return nil, err
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: activateRsp{
			Success: true,
			Token:   token,
		},
	}, nil
}

// clientAddress resolves the requester's address for the audit log, preferring
// the forwarding header set by the reverse proxy.
func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
