package compose

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

// ImagenConfig describes how to connect to Vertex AI Imagen.
type ImagenConfig struct {
	ProjectID          string
	Location           string
	Model              string
	APIKey             string
	ServiceAccountJSON string
}

// ImagenComposer implements Composer via the Vertex AI prediction API.
// Imagen edit requests take a single base image, so the furniture is carried
// through the prompt description instead of a reference photo.
type ImagenComposer struct {
	cfg ImagenConfig
}

// NewImagenComposer wires an ImagenComposer.
func NewImagenComposer(cfg ImagenConfig) *ImagenComposer {
	cfg.ProjectID = strings.TrimSpace(cfg.ProjectID)
	cfg.Location = strings.TrimSpace(cfg.Location)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &ImagenComposer{cfg: cfg}
}

// ModelName reports the backing model.
func (v *ImagenComposer) ModelName() string {
	if v.cfg.Model == "" {
		return "vertex-imagen"
	}
	return v.cfg.Model
}

// Compose runs an Imagen edit request against the room image.
func (v *ImagenComposer) Compose(ctx context.Context, req Request) (Result, error) {
	if v.cfg.ProjectID == "" || v.cfg.Location == "" || v.cfg.Model == "" {
		return Result{}, fmt.Errorf("compose: imagen missing project/location/model")
	}
	if len(req.Room.Data) == 0 {
		return Result{}, fmt.Errorf("compose: room image is required")
	}

	prompt := buildPrompt(req)

	instance, err := structpb.NewValue(map[string]any{
		"prompt": prompt,
		"image": map[string]any{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.Room.Data),
		},
	})
	if err != nil {
		return Result{}, err
	}

	params, err := structpb.NewValue(map[string]any{
		"sampleCount": 1,
		"editMode":    "inpainting-free-form",
	})
	if err != nil {
		return Result{}, err
	}

	endpoint := fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		v.cfg.ProjectID, v.cfg.Location, v.cfg.Model)
	options := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-aiplatform.googleapis.com:443", v.cfg.Location)),
	}
	if v.cfg.ServiceAccountJSON != "" {
		options = append(options, option.WithCredentialsJSON([]byte(v.cfg.ServiceAccountJSON)))
	} else if v.cfg.APIKey != "" {
		options = append(options, option.WithAPIKey(v.cfg.APIKey))
	}

	client, err := aiplatform.NewPredictionClient(ctx, options...)
	if err != nil {
		return Result{}, fmt.Errorf("compose: prediction client: %w", err)
	}
	defer client.Close()

	resp, err := client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:   endpoint,
		Instances:  []*structpb.Value{instance},
		Parameters: params,
	})
	if err != nil {
		return Result{}, fmt.Errorf("compose: imagen predict: %w", err)
	}
	if len(resp.Predictions) == 0 {
		return Result{}, fmt.Errorf("compose: empty imagen response")
	}

	field := resp.Predictions[0].GetStructValue().GetFields()["bytesBase64Encoded"]
	if field == nil {
		return Result{}, fmt.Errorf("compose: imagen prediction missing bytes")
	}

	data, err := base64.StdEncoding.DecodeString(field.GetStringValue())
	if err != nil {
		return Result{}, fmt.Errorf("compose: decode imagen result: %w", err)
	}

	return Result{Data: data, MimeType: "image/png"}, nil
}
