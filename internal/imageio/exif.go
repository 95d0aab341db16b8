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

package imageio

import (
	"sort"

	exif "github.com/dsoprea/go-exif/v3"
)

// ExifReport summarizes the EXIF metadata found in an encoded input.
// Re-encoding never carries EXIF over, so everything listed here is
// absent from the output.
type ExifReport struct {
	Tags   int  `json:"tags"`
	GPS    bool `json:"gps"`
	Camera bool `json:"camera"`
	Serial bool `json:"serial"`
	Author bool `json:"author"`

	// Sensitive lists the identifying tag names that were present.
	Sensitive []string `json:"sensitive,omitempty"`
}

// Identifying reports whether the input carried location, device or
// author information.
func (r ExifReport) Identifying() bool {
	return r.GPS || r.Serial || r.Author
}

// InspectExif extracts and classifies EXIF tags. Data without EXIF, or
// with EXIF the parser rejects, yields an empty report.
func InspectExif(data []byte) ExifReport {
	var report ExifReport

	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil || rawExif == nil {
		return report
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return report
	}

	seen := map[string]bool{}
	for _, entry := range entries {
		report.Tags++

		switch entry.TagName {
		case "GPSLatitude", "GPSLongitude", "GPSLatitudeRef", "GPSLongitudeRef", "GPSAltitude":
			report.GPS = true
		case "Make", "Model":
			report.Camera = true
		case "SerialNumber", "CameraSerialNumber", "BodySerialNumber", "LensSerialNumber":
			report.Serial = true
		case "Artist", "Author", "Copyright", "XPAuthor", "OwnerName", "CameraOwnerName":
			report.Author = true
		default:
			continue
		}
		seen[entry.TagName] = true
	}

	for name := range seen {
		report.Sensitive = append(report.Sensitive, name)
	}
	sort.Strings(report.Sensitive)
	return report
}
