// Package model defines the fixed catalog of model names the API accepts and
// the generation parameters each one maps to.
package model

import (
	"sort"

	"github.com/hanwei-dev/VeoBridge/internal/domain/task"
)

// DefaultID is the model assumed when a request omits one.
const DefaultID = "gemini-2.5-flash-image-landscape"

// Capability describes what a model name translates to when dispatched.
type Capability struct {
	Kind        task.Kind
	AspectRatio string
	Resolution  string
	MaxImages   int
}

var catalog = map[string]Capability{
	// Images
	"gemini-2.5-flash-image-landscape":      {Kind: task.KindImage, AspectRatio: "16:9", Resolution: "1K", MaxImages: 8},
	"gemini-2.5-flash-image-portrait":       {Kind: task.KindImage, AspectRatio: "9:16", Resolution: "1K", MaxImages: 8},
	"gemini-3.0-pro-image-landscape":        {Kind: task.KindImage, AspectRatio: "16:9", Resolution: "1K", MaxImages: 8},
	"gemini-3.0-pro-image-portrait":         {Kind: task.KindImage, AspectRatio: "9:16", Resolution: "1K", MaxImages: 8},
	"imagen-4.0-generate-preview-landscape": {Kind: task.KindImage, AspectRatio: "16:9", Resolution: "1K", MaxImages: 8},
	"imagen-4.0-generate-preview-portrait":  {Kind: task.KindImage, AspectRatio: "9:16", Resolution: "1K", MaxImages: 8},
	// Text to video
	"veo_3_1_t2v_fast_portrait":       {Kind: task.KindTextToVideo, AspectRatio: "9:16", Resolution: "720p", MaxImages: 0},
	"veo_3_1_t2v_fast_landscape":      {Kind: task.KindTextToVideo, AspectRatio: "16:9", Resolution: "720p", MaxImages: 0},
	"veo_2_1_fast_d_15_t2v_portrait":  {Kind: task.KindTextToVideo, AspectRatio: "9:16", Resolution: "720p", MaxImages: 0},
	"veo_2_1_fast_d_15_t2v_landscape": {Kind: task.KindTextToVideo, AspectRatio: "16:9", Resolution: "720p", MaxImages: 0},
	"veo_2_0_t2v_portrait":            {Kind: task.KindTextToVideo, AspectRatio: "9:16", Resolution: "720p", MaxImages: 0},
	"veo_2_0_t2v_landscape":           {Kind: task.KindTextToVideo, AspectRatio: "16:9", Resolution: "720p", MaxImages: 0},
	// First/last frame to video
	"veo_3_1_i2v_s_fast_fl_portrait":  {Kind: task.KindFramesToVideo, AspectRatio: "9:16", Resolution: "720p", MaxImages: 2},
	"veo_3_1_i2v_s_fast_fl_landscape": {Kind: task.KindFramesToVideo, AspectRatio: "16:9", Resolution: "720p", MaxImages: 2},
	"veo_2_1_fast_d_15_i2v_portrait":  {Kind: task.KindFramesToVideo, AspectRatio: "9:16", Resolution: "720p", MaxImages: 2},
	"veo_2_1_fast_d_15_i2v_landscape": {Kind: task.KindFramesToVideo, AspectRatio: "16:9", Resolution: "720p", MaxImages: 2},
	"veo_2_0_i2v_portrait":            {Kind: task.KindFramesToVideo, AspectRatio: "9:16", Resolution: "720p", MaxImages: 2},
	"veo_2_0_i2v_landscape":           {Kind: task.KindFramesToVideo, AspectRatio: "16:9", Resolution: "720p", MaxImages: 2},
	// Ingredients (reference images) to video
	"veo_3_0_r2v_fast_portrait":  {Kind: task.KindIngredientsToVideo, AspectRatio: "9:16", Resolution: "720p", MaxImages: 3},
	"veo_3_0_r2v_fast_landscape": {Kind: task.KindIngredientsToVideo, AspectRatio: "16:9", Resolution: "720p", MaxImages: 3},
}

// Lookup returns the capability for a model id.
func Lookup(id string) (Capability, bool) {
	c, ok := catalog[id]
	return c, ok
}

// IDs returns all model ids in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
