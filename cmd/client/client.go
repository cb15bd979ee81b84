package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paularlott/cli"

	"github.com/jlauha/seuranta/internal/model"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:         "server",
		Usage:        "Base URL of the seuranta server",
		DefaultValue: "http://localhost:8080",
		EnvVars:      []string{"SEURANTA_SERVER"},
	},
	&cli.StringFlag{
		Name:    "api-token",
		Usage:   "Bearer token for API authentication",
		EnvVars: []string{"SEURANTA_API_TOKEN"},
	},
}

// Commands returns the client subcommands that talk to a running server.
func Commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:        "present",
			Usage:       "Show who is currently present",
			Description: "Fetch the current present-names list from the server",
			Flags:       serverFlags,
			Run: func(ctx context.Context, cmd *cli.Command) error {
				var result struct {
					Present []string `json:"present"`
				}
				if err := getJSON(cmd, "/api/present", &result); err != nil {
					return err
				}

				if len(result.Present) == 0 {
					fmt.Println("Nobody is present")
					return nil
				}
				for _, name := range result.Present {
					fmt.Println(name)
				}
				return nil
			},
		},
		{
			Name:        "entities",
			Usage:       "List tracked entities",
			Description: "Fetch all tracked entities from the server",
			Flags:       serverFlags,
			Run: func(ctx context.Context, cmd *cli.Command) error {
				var entities []model.TrackedEntity
				if err := getJSON(cmd, "/api/entities", &entities); err != nil {
					return err
				}

				for _, e := range entities {
					fmt.Printf("%s\t%s\t%s\n", e.ID, e.Name, e.CreatedAt.Format(time.RFC3339))
				}
				return nil
			},
		},
		{
			Name:        "claim",
			Usage:       "Claim a name for this machine",
			Description: "Submit a display name; the server associates it with this machine's lease",
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:  "name",
					Usage: "Display name to claim",
				},
			}, serverFlags...),
			Run: func(ctx context.Context, cmd *cli.Command) error {
				name := cmd.GetString("name")
				if name == "" {
					return fmt.Errorf("--name is required")
				}

				body, err := json.Marshal(map[string]string{"name": name})
				if err != nil {
					return err
				}

				var entity model.TrackedEntity
				if err := doJSON(cmd, http.MethodPost, "/api/entities", body, &entity); err != nil {
					return err
				}

				fmt.Printf("Claimed %s (ID: %s)\n", entity.Name, entity.ID)
				return nil
			},
		},
	}
}

func getJSON(cmd *cli.Command, path string, out interface{}) error {
	return doJSON(cmd, http.MethodGet, path, nil, out)
}

func doJSON(cmd *cli.Command, method, path string, body []byte, out interface{}) error {
	url := cmd.GetString("server") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := cmd.GetString("api-token"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
