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

package obfuscate

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Direction is the data flow of an argument.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Argument categories shown in the designer's property grid.
const (
	CategoryCommon  = "Common"
	CategoryInput   = "Input"
	CategoryOutput  = "Output"
	CategoryOptions = "Options"
)

// ArgumentDescriptor describes one argument for a designer or a help page.
// DisplayName, Description and Category hold the English source strings;
// Describe returns translated copies.
type ArgumentDescriptor struct {
	Name        string      `json:"name" yaml:"name"`
	Direction   Direction   `json:"direction" yaml:"direction"`
	Type        string      `json:"type" yaml:"type"`
	Required    bool        `json:"required" yaml:"required"`
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
	Category    string      `json:"category" yaml:"category"`
	DisplayName string      `json:"display_name" yaml:"display_name"`
	Description string      `json:"description" yaml:"description"`
}

// Metadata is what a host needs to render the activity.
type Metadata struct {
	Name        string               `json:"name" yaml:"name"`
	DisplayName string               `json:"display_name" yaml:"display_name"`
	Description string               `json:"description" yaml:"description"`
	Category    string               `json:"category" yaml:"category"`
	HelpKeyword string               `json:"help_keyword" yaml:"help_keyword"`
	Language    string               `json:"language" yaml:"language"`
	Arguments   []ArgumentDescriptor `json:"arguments" yaml:"arguments"`
}

const (
	activityDisplayName = "Obfuscate"
	activityDescription = "Obscures a rectangular area of an image with a solid black fill or a Gaussian blur."
	activityCategory    = "Image Processing"
	helpKeyword         = "obfuscate-image-region"
)

// Descriptors returns the argument grid in declaration order.
func Descriptors() []ArgumentDescriptor {
	return []ArgumentDescriptor{
		{
			Name: ArgTimeoutMS, Direction: DirectionIn, Type: "integer", Default: DefaultTimeoutMS,
			Category: CategoryCommon, DisplayName: "Timeout (milliseconds)",
			Description: "How long to wait for the activity to finish before it fails with a timeout.",
		},
		{
			Name: ArgInputImage, Direction: DirectionIn, Type: "image", Required: true,
			Category: CategoryInput, DisplayName: "Input image",
			Description: "The image to obfuscate. It is not modified.",
		},
		{
			Name: ArgPositionX, Direction: DirectionIn, Type: "integer", Required: true,
			Category: CategoryInput, DisplayName: "Position X",
			Description: "Left edge of the area, in pixels from the left of the image.",
		},
		{
			Name: ArgPositionY, Direction: DirectionIn, Type: "integer", Required: true,
			Category: CategoryInput, DisplayName: "Position Y",
			Description: "Top edge of the area, in pixels from the top of the image.",
		},
		{
			Name: ArgWidth, Direction: DirectionIn, Type: "integer", Required: true,
			Category: CategoryInput, DisplayName: "Width",
			Description: "Width of the area in pixels.",
		},
		{
			Name: ArgHeight, Direction: DirectionIn, Type: "integer", Required: true,
			Category: CategoryInput, DisplayName: "Height",
			Description: "Height of the area in pixels.",
		},
		{
			Name: ArgBlur, Direction: DirectionIn, Type: "boolean", Default: false,
			Category: CategoryOptions, DisplayName: "Blur",
			Description: "Blur the area instead of filling it with black.",
		},
		{
			Name: ArgBlurAmount, Direction: DirectionIn, Type: "integer", Default: 0,
			Category: CategoryOptions, DisplayName: "Blur amount",
			Description: "Blur radius in pixels. Only used when Blur is set.",
		},
		{
			Name: ArgContinueOnError, Direction: DirectionIn, Type: "boolean", Default: false,
			Category: CategoryCommon, DisplayName: "Continue on error",
			Description: "Keep the workflow running when this activity fails.",
		},
		{
			Name: ArgOutputImage, Direction: DirectionOut, Type: "image",
			Category: CategoryOutput, DisplayName: "Output image",
			Description: "The obfuscated copy of the input image.",
		},
	}
}

// SupportedLanguages lists the languages with translated designer strings.
var SupportedLanguages = []language.Tag{language.English, language.French}

var languageMatcher = language.NewMatcher(SupportedLanguages)

// MatchLanguage picks the best supported language for a BCP 47 string
// such as "fr-CA". Unknown or empty input yields English.
func MatchLanguage(lang string) language.Tag {
	if lang == "" {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return SupportedLanguages[idx]
}

// Describe returns the activity metadata translated for tag.
func Describe(tag language.Tag) Metadata {
	p := message.NewPrinter(tag, message.Catalog(designerCatalog))
	tr := func(s string) string { return p.Sprintf(message.Key(s, s)) }

	args := Descriptors()
	for i := range args {
		args[i].Category = tr(args[i].Category)
		args[i].DisplayName = tr(args[i].DisplayName)
		args[i].Description = tr(args[i].Description)
	}

	return Metadata{
		Name:        ActionName,
		DisplayName: tr(activityDisplayName),
		Description: tr(activityDescription),
		Category:    tr(activityCategory),
		HelpKeyword: helpKeyword,
		Language:    tag.String(),
		Arguments:   args,
	}
}
