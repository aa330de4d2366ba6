package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

func postJSON(apiURL, path string, payload interface{}, out io.Writer) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(apiURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return drain(resp, out)
}

func getPath(apiURL, path string, out io.Writer) error {
	resp, err := http.Get(apiURL + path)
	if err != nil {
		return err
	}
	return drain(resp, out)
}

func drain(resp *http.Response, out io.Writer) error {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}
	_, err := io.Copy(out, resp.Body)
	return err
}

func runAdd(apiURL, userID, content string, tags []string, out io.Writer) error {
	payload := map[string]interface{}{"content": content}
	if userID != "" {
		payload["userId"] = userID
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}
	return postJSON(apiURL, "/api/memories", payload, out)
}

func runQuery(apiURL, userID, text string, limit int, sector, tag string, out io.Writer) error {
	if text == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	payload := map[string]interface{}{"text": text, "limit": limit}
	if userID != "" {
		payload["userId"] = userID
	}
	if sector != "" {
		payload["sector"] = sector
	}
	if tag != "" {
		payload["tag"] = tag
	}
	return postJSON(apiURL, "/api/memories/query", payload, out)
}

func runGet(apiURL, id string, out io.Writer) error {
	return getPath(apiURL, "/api/memories/"+url.PathEscape(id), out)
}

func runList(apiURL, userID, sector, cursor string, limit int, out io.Writer) error {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	if sector != "" {
		q.Set("sector", sector)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/api/memories"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return getPath(apiURL, path, out)
}

func runReinforce(apiURL, id string, delta float64, out io.Writer) error {
	payload := map[string]interface{}{}
	if delta > 0 {
		payload["delta"] = delta
	}
	return postJSON(apiURL, "/api/memories/"+url.PathEscape(id)+"/reinforce", payload, out)
}

func runDelete(apiURL, id string, out io.Writer) error {
	req, err := http.NewRequest(http.MethodDelete, apiURL+"/api/memories/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	return drain(resp, out)
}

func runStats(apiURL string, out io.Writer) error {
	return getPath(apiURL, "/api/stats", out)
}

func runDecay(apiURL string, out io.Writer) error {
	return postJSON(apiURL, "/api/decay/run", map[string]interface{}{}, out)
}
