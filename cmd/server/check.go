package main

import (
	"context"
	"fmt"
	"io"

	"livewatch/internal/presence"
)

// check runs one fetch-and-resolve without touching any cache and prints the state.
func check(ctx context.Context, f presence.Fetcher, channelID string, out io.Writer) error {
	records, err := f.Fetch(ctx, channelID)
	if err != nil {
		return fmt.Errorf("fetch videos: %w", err)
	}

	body, err := presence.MarshalState(presence.Resolve(records))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(body))
	return err
}
