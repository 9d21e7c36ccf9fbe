// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"net/url"
	"regexp"
	"strings"
)

// SigQueryParam is the query parameter name under which a signed-URL
// signature typically travels (Azure's "sig", S3-style "X-Amz-Signature").
const SigQueryParam = "sig"

var urlLikeToken = regexp.MustCompile(`https?://\S+`)

// RedactSecretQueryParamsForLogging finds URL-shaped substrings in a log
// line and redacts any signature-bearing query parameter before the line
// is written out, so accidental inclusion of a signed request URL in a
// progress or error message never leaks a credential into the log file.
func RedactSecretQueryParamsForLogging(msg string) string {
	return urlLikeToken.ReplaceAllStringFunc(msg, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || u.RawQuery == "" {
			return raw
		}
		values := u.Query()
		redacted := false
		for param := range values {
			if strings.EqualFold(param, SigQueryParam) || strings.Contains(strings.ToLower(param), "signature") {
				values.Set(param, "REDACTED")
				redacted = true
			}
		}
		if !redacted {
			return raw
		}
		u.RawQuery = values.Encode()
		return u.String()
	})
}
