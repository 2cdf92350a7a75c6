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
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/klemu/klem/status"
)

var statusText bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the daemon for its status: device, node id, mode, filtered peers and,
while the radio runs, link, ingress and per-queue counters.

The status is printed as JSON unless --text asks for the console dump.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runStatusCommand()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusText, "text", false, "print the console status dump")
}

func runStatusCommand() {
	err := withClient(func(ctx context.Context, client *status.Client) error {
		if statusText {
			out, err := client.Command(ctx, "status")
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		}

		st, err := client.Status(ctx)
		if err != nil {
			return err
		}
		js, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
		if err != nil {
			return err
		}
		fmt.Println(string(js))
		return nil
	})
	if err != nil {
		exitWithError("failed to query daemon status", err)
	}
}
