// Copyright (c) 2023, The KLEM Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package status

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/klemu/klem/ctrl"
	"github.com/klemu/klem/logger"
)

const healthPollInterval = 500 * time.Millisecond

// Commander runs CLI command lines. *cli.CmdRunner implements it.
type Commander interface {
	HandleCommand(cmd string, output io.Writer) error
}

type Server struct {
	ctrl     *ctrl.Controller
	cmd      Commander
	server   *grpc.Server
	health   *health.Server
	address  string
	done     chan struct{}
	stopOnce sync.Once
}

func NewServer(c *ctrl.Controller, cmd Commander, address string) *Server {
	s := &Server{
		ctrl:    c,
		cmd:     cmd,
		server:  grpc.NewServer(grpc.ReadBufferSize(1024*8), grpc.WriteBufferSize(1024*64)),
		health:  health.NewServer(),
		address: address,
		done:    make(chan struct{}),
	}
	RegisterControlServer(s.server, s)
	healthpb.RegisterHealthServer(s.server, s.health)
	s.updateHealth()
	return s
}

func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.updateHealth()
	return structpb.NewStruct(statusFields(s.ctrl.Status()))
}

// Command runs one CLI line; the response carries the command output including the trailing
// Done or Error line.
func (s *Server) Command(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	var output bytes.Buffer
	err := s.cmd.HandleCommand(req.GetValue(), &output)
	s.updateHealth()
	return wrapperspb.String(output.String()), err
}

// Run listens on the configured TCP address and serves until Stop.
func (s *Server) Run() error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	logger.Infof("gRPC control server serving on %s ...", lis.Addr())
	go s.pollHealth()
	return s.server.Serve(lis)
}

func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.health.Shutdown()
		s.server.Stop()
	})
}

func (s *Server) pollHealth() {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.updateHealth()
		case <-s.done:
			return
		}
	}
}

// updateHealth reports the control service as serving while a radio runs.
func (s *Server) updateHealth() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.ctrl.Running() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}

func statusFields(st ctrl.Status) map[string]interface{} {
	filter := make([]interface{}, 0, len(st.Filter))
	for _, id := range st.Filter {
		filter = append(filter, id)
	}
	fields := map[string]interface{}{
		"version": st.Version,
		"device":  st.Device,
		"running": st.Running,
		"socket":  st.Socket,
		"id":      st.Id,
		"mode":    st.Mode,
		"filter":  filter,
		"station": map[string]interface{}{
			"beacons":   st.Station.Beacons,
			"received":  st.Station.Received,
			"completed": st.Station.Completed,
			"acked":     st.Station.Acked,
		},
	}
	if st.Link != nil {
		fields["link"] = map[string]interface{}{
			"units_sent":      st.Link.UnitsSent,
			"bytes_sent":      st.Link.BytesSent,
			"send_failures":   st.Link.SendFailures,
			"units_received":  st.Link.UnitsReceived,
			"units_discarded": st.Link.UnitsDiscarded,
		}
	}
	if st.Ingress != nil {
		fields["ingress"] = map[string]interface{}{
			"delivered":         st.Ingress.Delivered,
			"filtered":          st.Ingress.Filtered,
			"dropped_unpowered": st.Ingress.DroppedUnpowered,
		}
	}
	if st.Radio != nil {
		queues := make([]interface{}, 0, len(st.Radio.Queues))
		for _, q := range st.Radio.Queues {
			queues = append(queues, map[string]interface{}{
				"class":       q.Class.String(),
				"depth":       q.Depth,
				"blocked":     q.Blocked,
				"aifs":        int(q.Params.Aifs),
				"cw_min":      int(q.Params.CwMin),
				"cw_max":      int(q.Params.CwMax),
				"txop":        int(q.Params.Txop),
				"received":    q.Received,
				"sent":        q.Sent,
				"send_errors": q.SendErrors,
				"dropped":     q.Dropped,
			})
		}
		fields["radio"] = map[string]interface{}{
			"address":      st.Radio.Addr.String(),
			"powered":      st.Radio.Powered,
			"idle":         st.Radio.Idle,
			"beacon_count": st.Radio.BeaconCount,
			"runt_dropped": st.Radio.RuntDropped,
			"queues":       queues,
		}
	}
	return fields
}
