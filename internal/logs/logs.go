// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logs is the external log-file-reading collaborator referenced
// by section 6's GET /logs/{author}/{name}/{version}: tailing the last N
// lines of a service's append log.
package logs

import (
	"bufio"
	"container/ring"
	"errors"
	"os"
)

// ErrUnavailable is LogUnavailable from section 7: the log file does not
// exist, e.g. the service has never been started.
var ErrUnavailable = errors.New("log unavailable")

// Tail returns the last n lines of the file at path, oldest first. n <=
// 0 returns every line.
func Tail(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if n <= 0 {
		var all []string
		for scanner.Scan() {
			all = append(all, scanner.Text())
		}
		return all, scanner.Err()
	}

	r := ring.New(n)
	for scanner.Scan() {
		r.Value = scanner.Text()
		r = r.Next()
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	lines := make([]string, 0, n)
	r.Do(func(v any) {
		if v != nil {
			lines = append(lines, v.(string))
		}
	})
	return lines, nil
}
