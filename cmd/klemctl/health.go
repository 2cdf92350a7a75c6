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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/klemu/klem/status"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the control service health",
	Long: `Check the standard gRPC health service of the daemon. The control service is
SERVING while the radio runs and NOT_SERVING otherwise; klemctl exits with 1
unless it is SERVING.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runHealthCommand()
	},
}

func runHealthCommand() {
	var st healthpb.HealthCheckResponse_ServingStatus
	err := withClient(func(ctx context.Context, client *status.Client) error {
		var err error
		st, err = client.Health(ctx)
		return err
	})
	if err != nil {
		exitWithError("health check failed", err)
	}
	fmt.Println(st.String())
	if st != healthpb.HealthCheckResponse_SERVING {
		exitWithError(fmt.Sprintf("%s is %s", status.ServiceName, st), nil)
	}
}
