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
	"golang.org/x/text/message/catalog"
)

// English strings are the keys, so a missing translation prints English.
var french = map[string]string{
	activityDisplayName: "Obscurcir",
	activityDescription: "Masque une zone rectangulaire d'une image par un remplissage noir ou un flou gaussien.",
	activityCategory:    "Traitement d'image",

	CategoryCommon:  "Commun",
	CategoryInput:   "Entrée",
	CategoryOutput:  "Sortie",
	CategoryOptions: "Options",

	"Timeout (milliseconds)": "Délai d'expiration (millisecondes)",
	"How long to wait for the activity to finish before it fails with a timeout.": "Durée d'attente avant que l'activité échoue pour dépassement de délai.",
	"Input image": "Image d'entrée",
	"The image to obfuscate. It is not modified.": "L'image à obscurcir. Elle n'est pas modifiée.",
	"Position X": "Position X",
	"Left edge of the area, in pixels from the left of the image.": "Bord gauche de la zone, en pixels depuis la gauche de l'image.",
	"Position Y": "Position Y",
	"Top edge of the area, in pixels from the top of the image.": "Bord supérieur de la zone, en pixels depuis le haut de l'image.",
	"Width":                        "Largeur",
	"Width of the area in pixels.": "Largeur de la zone en pixels.",
	"Height":                       "Hauteur",
	"Height of the area in pixels.": "Hauteur de la zone en pixels.",
	"Blur":                          "Flou",
	"Blur the area instead of filling it with black.": "Flouter la zone au lieu de la remplir de noir.",
	"Blur amount": "Intensité du flou",
	"Blur radius in pixels. Only used when Blur is set.": "Rayon du flou en pixels. Utilisé uniquement si Flou est activé.",
	"Continue on error": "Continuer en cas d'erreur",
	"Keep the workflow running when this activity fails.": "Poursuivre le workflow lorsque cette activité échoue.",
	"Output image": "Image de sortie",
	"The obfuscated copy of the input image.": "La copie obscurcie de l'image d'entrée.",
}

var designerCatalog = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range french {
		// SetString only fails for malformed messages; these are literals.
		_ = b.SetString(language.French, key, msg)
	}
	return b
}
