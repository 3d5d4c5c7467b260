package server

import (
	"fmt"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
)

const (
	ApiNamespace = "submitter"
)

type Server struct {
	handler        *rpc.Server
	metricsHandler http.Handler
	listenAddress  string
}

func NewServer(handler *rpc.Server, metricsHandler http.Handler, port int) *Server {
	return &Server{
		handler:        handler,
		metricsHandler: metricsHandler,
		listenAddress:  fmt.Sprintf("0.0.0.0:%d", port),
	}
}

// NewRpcHandler registers the api under the submitter namespace.
func NewRpcHandler(api *ApiHandler) (*rpc.Server, error) {
	handler := rpc.NewServer()
	if err := handler.RegisterName(ApiNamespace, api); err != nil {
		return nil, err
	}

	return handler, nil
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", s.handler)
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}

	return mux
}

func (s *Server) Run() {
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		panic(err)
	}

	srv := &http.Server{Handler: s.mux()}
	log.Info("Running server at", s.listenAddress)
	if err := srv.Serve(listener); err != nil {
		log.Error("Server stopped, err = ", err)
	}
}
