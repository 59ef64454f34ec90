// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vision

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jaycherian/gcp-go-clip-match/internal/core/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var authMessages = []string{
	"api key not valid",
	"invalid api key",
	"permission denied",
	"unauthenticated",
	"unauthorized",
	"forbidden",
}

func isAuthCode(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsAuthError reports whether err is an authentication or permission failure
// from the model provider.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if model.IsKind(err, model.KindAuth) {
		return true
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isAuthCode(apiErr.Code) {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && isAuthCode(apiErrPtr.Code) {
		return true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && isAuthCode(gErr.Code) {
		return true
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range authMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyModelError tags a model call failure with its kind. Validation
// errors from parsing keep their kind.
func classifyModelError(err error) error {
	var typed *model.Error
	if errors.As(err, &typed) {
		return err
	}
	if IsAuthError(err) {
		return model.NewError(model.KindAuth, "generate tags", err)
	}
	return model.NewError(model.KindTransient, "generate tags", err)
}
