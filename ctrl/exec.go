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

package ctrl

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Exec applies whitespace separated key=value settings in order. Every token is attempted; the
// errors of failing tokens are joined into the returned error.
//
//	command=start|stop device=<name> id=<0..255> filter=<id> accept=<id> mode=lemu|bridge
func (c *Controller) Exec(text string) error {
	var failed []string
	for _, token := range strings.Fields(text) {
		if err := c.execToken(token); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return errors.New(strings.Join(failed, "; "))
	}
	return nil
}

func (c *Controller) execToken(token string) error {
	key, value, ok := strings.Cut(token, "=")
	if !ok || value == "" {
		return errors.Errorf("malformed setting %q", token)
	}
	return c.Set(key, value)
}

// Set applies one setting by name.
func (c *Controller) Set(key string, value string) error {
	key = strings.ToLower(key)
	switch key {
	case "command":
		switch value {
		case "start":
			return c.Start()
		case "stop":
			return c.Stop()
		default:
			return errors.Errorf("unknown command %q", value)
		}
	case "device":
		c.SetDevice(value)
		return nil
	case "id":
		id, err := strconv.Atoi(value)
		if err != nil {
			_ = c.SetId(0)
			return errors.Errorf("device id %q is not a number, using 0", value)
		}
		return c.SetId(id)
	case "filter", "accept":
		id, err := strconv.Atoi(value)
		if err != nil {
			return errors.Errorf("%s id %q is not a number", key, value)
		}
		if key == "filter" {
			return c.Filter(id)
		}
		return c.Accept(id)
	case "mode":
		return c.SetMode(value)
	default:
		return errors.Errorf("unknown setting %q", key)
	}
}
