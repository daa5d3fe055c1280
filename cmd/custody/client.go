package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"custody/pkg/chunker"
	"custody/pkg/types"
	"custody/pkg/utils"

	"github.com/spf13/cobra"
)

func commitCmd() *cobra.Command {
	var (
		fileID    string
		chunkSize string
		useMerkle bool
	)

	cmd := &cobra.Command{
		Use:   "commit <file>",
		Short: "Chunk a local file and register its commitments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			if fileID == "" {
				fileID = filepath.Base(args[0])
			}

			size, err := utils.ParseChunkSize(chunkSize)
			if err != nil {
				return err
			}
			ck := chunker.New(size)
			leaves := ck.LeafHashes(data)

			if useMerkle {
				tree, err := chunker.BuildTree(leaves)
				if err != nil {
					return err
				}
				root := tree.Root()
				var resp map[string]uint64
				err = postJSON("/v1/commitments/merkle", map[string]interface{}{
					"file_id":      fileID,
					"root":         hex.EncodeToString(root[:]),
					"chunk_size":   ck.ChunkSize(),
					"total_chunks": tree.NumLeaves(),
				}, &resp)
				if err != nil {
					return err
				}
				fmt.Printf("Registered Merkle root for %s (%d chunks of %d bytes)\n",
					fileID, tree.NumLeaves(), ck.ChunkSize())
				return nil
			}

			hashes := make([]string, len(leaves))
			for i, leaf := range leaves {
				hashes[i] = hex.EncodeToString(leaf[:])
			}
			var resp map[string]int
			err = postJSON("/v1/commitments/chunks", map[string]interface{}{
				"file_id":     fileID,
				"chunk_size":  ck.ChunkSize(),
				"leaf_hashes": hashes,
			}, &resp)
			if err != nil {
				return err
			}
			fmt.Printf("Registered %d chunk hashes for %s (chunk size %d)\n",
				len(leaves), fileID, ck.ChunkSize())
			return nil
		},
	}

	cmd.Flags().StringVar(&fileID, "file-id", "", "file identifier (defaults to file name)")
	cmd.Flags().StringVar(&chunkSize, "chunk-size", "", "chunk size, e.g. 4KB (empty = default)")
	cmd.Flags().BoolVar(&useMerkle, "merkle", false, "register a Merkle root instead of chunk hashes")
	return cmd
}

func challengeCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "challenge <file-id>",
		Short: "Request a storage challenge for a committed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var challenge types.StorageChallenge
			err := postJSON("/v1/challenges", map[string]string{
				"file_id":  args[0],
				"provider": provider,
			}, &challenge)
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(challenge, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "local", "provider identifier")
	return cmd
}

func proveCmd() *cobra.Command {
	var (
		challengeID string
		provider    string
		chunkIndex  uint64
		chunkSize   string
		withPath    bool
	)

	cmd := &cobra.Command{
		Use:   "prove <file-id> <file>",
		Short: "Answer a challenge with bytes sampled from a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			size, err := utils.ParseChunkSize(chunkSize)
			if err != nil {
				return err
			}
			ck := chunker.New(size)
			proofData, err := ck.Chunk(data, chunkIndex)
			if err != nil {
				return err
			}

			payload := map[string]interface{}{
				"challenge_id": challengeID,
				"file_id":      args[0],
				"provider":     provider,
				"timestamp":    time.Now(),
				"proof_data":   proofData,
			}
			if withPath {
				tree, err := chunker.BuildTree(ck.LeafHashes(data))
				if err != nil {
					return err
				}
				path, err := tree.Path(chunkIndex)
				if err != nil {
					return err
				}
				payload["merkle_proof"] = path
			}

			var resp struct {
				Verified bool `json:"verified"`
			}
			if err := postJSON("/v1/proofs", payload, &resp); err != nil {
				return err
			}

			if resp.Verified {
				fmt.Println("Proof verified")
			} else {
				fmt.Println("Proof REJECTED")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&challengeID, "challenge-id", "", "challenge to answer")
	cmd.Flags().Uint64Var(&chunkIndex, "chunk-index", 0, "chunk index named by the challenge")
	cmd.Flags().StringVarP(&provider, "provider", "p", "local", "provider identifier")
	cmd.Flags().StringVar(&chunkSize, "chunk-size", "", "chunk size, e.g. 4KB (must match the commitment)")
	cmd.Flags().BoolVar(&withPath, "merkle-path", false, "attach a Merkle path to the proof")
	cmd.MarkFlagRequired("challenge-id")
	return cmd
}

func postJSON(path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func getJSON(path string, out interface{}) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
