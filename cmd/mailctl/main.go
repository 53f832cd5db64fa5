// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "mailctl",
		Short: "Mail Delivery Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("MAILCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set MAILCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(domainCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mailctl version %s\n", version)
		},
	}
}

// request はAPIへリクエストを送り、期待ステータス以外はエラーにする。
func request(method, path string, reqBody any, wantStatus int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set MAILCTL_API_URL)")
	}

	var reader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, apiURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// domainCmd は送信ドメイン管理コマンド群。
func domainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage sending domains",
	}
	cmd.AddCommand(domainCreateCmd())
	cmd.AddCommand(domainListCmd())
	cmd.AddCommand(domainDNSCmd())
	cmd.AddCommand(domainRotateKeyCmd())
	cmd.AddCommand(domainVerifyCmd())
	cmd.AddCommand(domainDeactivateCmd())
	cmd.AddCommand(domainDeleteCmd())
	return cmd
}

func domainCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new sending domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodPost, "/v1/domains", map[string]string{"name": name}, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Domain struct {
					Name     string `json:"name"`
					Selector string `json:"selector"`
				} `json:"domain"`
				Records struct {
					Signing struct {
						Host  string `json:"host"`
						Value string `json:"value"`
					} `json:"signing"`
				} `json:"dns_records"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("Registered domain %q (selector: %s)\n", result.Domain.Name, result.Domain.Selector)
			fmt.Printf("Publish this TXT record to enable signing:\n  %s\n  %s\n",
				result.Records.Signing.Host, result.Records.Signing.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func domainListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodGet, "/v1/domains", nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Domains []struct {
					Name       string `json:"name"`
					Selector   string `json:"selector"`
					IsActive   bool   `json:"is_active"`
					IsVerified bool   `json:"is_verified"`
				} `json:"domains"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("%-30s %-10s %-8s %s\n", "NAME", "SELECTOR", "ACTIVE", "VERIFIED")
			for _, d := range result.Domains {
				fmt.Printf("%-30s %-10s %-8t %t\n", d.Name, d.Selector, d.IsActive, d.IsVerified)
			}
			return nil
		},
	}
}

func domainDNSCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "dns",
		Short: "Show DNS records required for a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodGet, "/v1/domains/"+name+"/dns", nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result map[string]struct {
				Host  string `json:"host"`
				Type  string `json:"type"`
				Value string `json:"value"`
				TTL   int    `json:"ttl"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			for _, key := range []string{"signing", "sender_policy", "reporting_policy"} {
				record := result[key]
				fmt.Printf("%s (%s, ttl=%d)\n  %s\n  %s\n", key, record.Type, record.TTL, record.Host, record.Value)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func domainRotateKeyCmd() *cobra.Command {
	var name, selector string
	cmd := &cobra.Command{
		Use:   "rotate-key",
		Short: "Rotate the signing key of a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqBody := map[string]string{}
			if selector != "" {
				reqBody["selector"] = selector
			}
			body, err := request(http.MethodPost, "/v1/domains/"+name+"/rotate-key", reqBody, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Domain struct {
					Selector string `json:"selector"`
				} `json:"domain"`
				Records struct {
					Signing struct {
						Host  string `json:"host"`
						Value string `json:"value"`
					} `json:"signing"`
				} `json:"dns_records"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("Rotated signing key for %q (selector: %s)\n", name, result.Domain.Selector)
			fmt.Printf("Publish this TXT record before removing the old one:\n  %s\n  %s\n",
				result.Records.Signing.Host, result.Records.Signing.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.Flags().StringVar(&selector, "selector", "", "New selector (default: date-based)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func domainVerifyCmd() *cobra.Command {
	var name string
	var unverified bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Mark a domain's DNS setup as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodPost, "/v1/domains/"+name+"/verify",
				map[string]bool{"verified": !unverified}, http.StatusOK)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			if unverified {
				fmt.Printf("Marked domain %q as unverified\n", name)
			} else {
				fmt.Printf("Marked domain %q as verified\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.Flags().BoolVar(&unverified, "unverified", false, "Clear the verified flag instead of setting it")
	cmd.MarkFlagRequired("name")
	return cmd
}

func domainDeactivateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate a sending domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := request(http.MethodDelete, "/v1/domains/"+name, nil, http.StatusAccepted); err != nil {
				return err
			}
			if output == "json" {
				fmt.Println("{}")
			} else {
				fmt.Printf("Deactivated domain %q\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func domainDeleteCmd() *cobra.Command {
	var name string
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Permanently delete a domain and all its keys and send records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("deletion is irreversible; re-run with --yes to confirm")
			}
			if _, err := request(http.MethodDelete, "/v1/domains/"+name+"?purge=true", nil, http.StatusNoContent); err != nil {
				return err
			}
			if output == "json" {
				fmt.Println("{}")
			} else {
				fmt.Printf("Deleted domain %q\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Domain name (required)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm permanent deletion")
	cmd.MarkFlagRequired("name")
	return cmd
}

// keyCmd はAPIキー管理コマンド群。
func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage API keys",
	}
	cmd.AddCommand(keyIssueCmd())
	cmd.AddCommand(keyListCmd())
	cmd.AddCommand(keyRotateCmd())
	cmd.AddCommand(keyRevokeCmd())
	return cmd
}

func keyIssueCmd() *cobra.Command {
	var domainName, keyName string
	var ttlHours int
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key for a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodPost, "/v1/domains/"+domainName+"/keys",
				map[string]any{"name": keyName, "ttl_hours": ttlHours}, http.StatusCreated)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				ID    string `json:"id"`
				Token string `json:"token"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("Issued key %s for domain %q\n", result.ID, domainName)
			fmt.Printf("Token (shown only once): %s\n", result.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&domainName, "domain", "", "Domain name (required)")
	cmd.Flags().StringVar(&keyName, "name", "default", "Key name")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "Expiry in hours (0 = no expiry)")
	cmd.MarkFlagRequired("domain")
	return cmd
}

func keyListCmd() *cobra.Command {
	var domainName string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for a domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodGet, "/v1/domains/"+domainName+"/keys", nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Keys []struct {
					ID        string `json:"id"`
					Name      string `json:"name"`
					KeyPrefix string `json:"key_prefix"`
					IsActive  bool   `json:"is_active"`
					ExpiresAt string `json:"expires_at"`
				} `json:"keys"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("%-38s %-16s %-13s %-8s %s\n", "ID", "NAME", "PREFIX", "ACTIVE", "EXPIRES_AT")
			for _, k := range result.Keys {
				expires := k.ExpiresAt
				if expires == "" {
					expires = "-"
				}
				fmt.Printf("%-38s %-16s %-13s %-8t %s\n", k.ID, k.Name, k.KeyPrefix, k.IsActive, expires)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domainName, "domain", "", "Domain name (required)")
	cmd.MarkFlagRequired("domain")
	return cmd
}

func keyRotateCmd() *cobra.Command {
	var keyID string
	var ttlHours int
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate an API key secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodPost, "/v1/keys/"+keyID+"/rotate",
				map[string]any{"ttl_hours": ttlHours}, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("Rotated key %s\n", keyID)
			fmt.Printf("New token (shown only once): %s\n", result.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyID, "id", "", "Key ID (required)")
	cmd.Flags().IntVar(&ttlHours, "ttl-hours", 0, "Expiry in hours (0 = no expiry)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func keyRevokeCmd() *cobra.Command {
	var keyID string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := request(http.MethodDelete, "/v1/keys/"+keyID, nil, http.StatusAccepted); err != nil {
				return err
			}
			if output == "json" {
				fmt.Println("{}")
			} else {
				fmt.Printf("Revoked key %s\n", keyID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyID, "id", "", "Key ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

// logsCmd は送信監査ログの取得コマンド。
func logsCmd() *cobra.Command {
	var domainName, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List send attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/logs?domain=%s&status=%s&limit=%d", domainName, status, limit)
			body, err := request(http.MethodGet, path, nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Attempts []struct {
					ID         string `json:"id"`
					Sender     string `json:"sender"`
					Status     string `json:"status"`
					RetryCount int    `json:"retry_count"`
					LastError  string `json:"last_error"`
					CreatedAt  string `json:"created_at"`
				} `json:"attempts"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("%-38s %-28s %-14s %-7s %s\n", "ID", "SENDER", "STATUS", "RETRIES", "CREATED_AT")
			for _, a := range result.Attempts {
				fmt.Printf("%-38s %-28s %-14s %-7d %s\n", a.ID, a.Sender, a.Status, a.RetryCount, a.CreatedAt)
				if a.LastError != "" {
					fmt.Printf("  last error: %s\n", a.LastError)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domainName, "domain", "", "Filter by domain name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: sent, pending_retry, failed")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of attempts to list")
	return cmd
}

// statsCmd は送信集計の取得コマンド。
func statsCmd() *cobra.Command {
	var domainName string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show send statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := request(http.MethodGet, "/v1/stats?domain="+domainName, nil, http.StatusOK)
			if err != nil {
				return err
			}

			if output == "json" {
				fmt.Println(string(body))
				return nil
			}
			var result struct {
				Total        int64 `json:"total"`
				Sent         int64 `json:"sent"`
				Failed       int64 `json:"failed"`
				PendingRetry int64 `json:"pending_retry"`
				SentLast24h  int64 `json:"sent_last_24h"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Printf("total:         %d\n", result.Total)
			fmt.Printf("sent:          %d\n", result.Sent)
			fmt.Printf("failed:        %d\n", result.Failed)
			fmt.Printf("pending retry: %d\n", result.PendingRetry)
			fmt.Printf("sent (24h):    %d\n", result.SentLast24h)
			return nil
		},
	}
	cmd.Flags().StringVar(&domainName, "domain", "", "Filter by domain name")
	return cmd
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Error != "" {
		if errResp.Details != "" {
			return fmt.Errorf("Error: %s (%s)", errResp.Error, errResp.Details)
		}
		return fmt.Errorf("Error: %s", errResp.Error)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
