package main

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func doCreateBuild(ctx context.Context, cfg cliConfig, race string, units []string, out any) error {
	in := map[string]any{"race": race, "units": units}
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.create", in, out)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodPost, "/api/builds", in, out)
}

func doListBuilds(ctx context.Context, cfg cliConfig, race string, limit int, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.list", map[string]any{"race": race, "limit": limit}, out)
	}
	params := url.Values{}
	if race != "" {
		params.Set("race", race)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/builds"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodGet, path, nil, out)
}

func doGetBuild(ctx context.Context, cfg cliConfig, key string, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.get", map[string]any{"key": key}, out)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodGet, buildPath(key, ""), nil, out)
}

func doAddUnit(ctx context.Context, cfg cliConfig, key, unit string, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.add_unit", map[string]any{"key": key, "unit": unit}, out)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodPost, buildPath(key, "/units"), map[string]any{"unit": unit}, out)
}

func doBranch(ctx context.Context, cfg cliConfig, key string, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.branch", map[string]any{"key": key}, out)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodPost, buildPath(key, "/branch"), nil, out)
}

func doFeatures(ctx context.Context, cfg cliConfig, key string, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.features", map[string]any{"key": key}, out)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodGet, buildPath(key, "/features"), nil, out)
}

func doBuildTech(ctx context.Context, cfg cliConfig, key string, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.tech", map[string]any{"key": key}, out)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodGet, buildPath(key, "/tech"), nil, out)
}

func doListEvents(ctx context.Context, cfg cliConfig, key string, limit int, out any) error {
	if cfg.Transport == "uds" {
		return newRPCClient(cfg.Socket).call(ctx, "builds.events", map[string]any{"key": key, "limit": limit}, out)
	}
	path := buildPath(key, "/events")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return newAPIClient(cfg.Server).request(ctx, http.MethodGet, path, nil, out)
}

func buildPath(key, suffix string) string {
	return "/api/builds/" + url.PathEscape(key) + suffix
}
