// Copyright 2025 Tom Barlow
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

/*
Package httpapi exposes the obfuscate activity over HTTP.

Routes:

	POST /v1/obfuscate   image in the body, arguments in the query
	GET  /v1/metadata    activity description (honours ?lang and Accept-Language)
	GET  /healthz        liveness
	GET  /metrics        Prometheus exposition, when a handler is configured

Query arguments use the activity names or their snake_case forms
(x, y, width, height, blur, blur_amount, timeout_ms, continue_on_error).
Values starting with '=' are expressions evaluated against the uploaded
image; expression variables are passed as var.<name>=<value>.

The output format is taken from ?format, then the Accept header, then
the format of the uploaded image.

Every missing required argument is reported in one 400 response before
the body is decoded. A time budget overrun is a 504. With
continue_on_error the response is 200 with a JSON body and no image.
*/
package httpapi
