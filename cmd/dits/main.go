// Command dits is a thin command-line harness over the storage core:
// ingest, reconstruct, commit, fsck, and stats. It exists to exercise
// the library end to end, not as a designed CLI surface — the real
// argument parser and wire protocol live outside the core (spec §1).
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/byronwade/dits/internal/metrics"
	"github.com/byronwade/dits/pkg/chunk"
	"github.com/byronwade/dits/pkg/hashapi"
	"github.com/byronwade/dits/pkg/ingest"
	"github.com/byronwade/dits/pkg/objects"
	"github.com/byronwade/dits/pkg/reconstruct"
	"github.com/byronwade/dits/pkg/repo"
)

var (
	repoDir       string
	debugEnabled  bool
	metricsAddr   string
	profileFlag   string
	ingestSession string
)

func logDebug(format string, args ...interface{}) {
	if !debugEnabled {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

func openRepo() (*repo.Repo, error) {
	return repo.Open(repoDir)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "dits",
		Short: "Content-addressed storage core for large binary/media repositories",
	}
	rootCmd.PersistentFlags().StringVar(&repoDir, "repo", ".dits", "Path to the repository directory")
	rootCmd.PersistentFlags().BoolVar(&debugEnabled, "debug", false, "Enable verbose debug logging")

	rootCmd.AddCommand(
		initCmd(),
		ingestCmd(),
		reconstructCmd(),
		refCmd(),
		commitCmd(),
		statsCmd(),
		fsckCmd(),
		gcCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	var encrypt bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new repository at --repo, if one does not already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if encrypt {
				if err := preseedCipherSalt(repoDir); err != nil {
					return err
				}
			}
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()
			logDebug("initialized repository at %s", repoDir)
			fmt.Printf("initialized dits repository at %s\n", repoDir)
			return nil
		},
	}
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Enable convergent at-rest encryption with a freshly generated repo salt")
	return cmd
}

// preseedCipherSalt writes a config file with cipher enabled and a fresh
// random salt before Open's loadOrInitConfig path runs, so a first-time
// "init --encrypt" doesn't need a second round-trip to turn it on.
func preseedCipherSalt(dir string) error {
	cfgPath := dir + "/config"
	if _, err := os.Stat(cfgPath); err == nil {
		return nil // repo already exists; leave its config alone
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return fmt.Errorf("dits: generate cipher salt: %w", err)
	}
	body := fmt.Sprintf("hash_algo=blake3\ndefault_profile=generic\ncompress_chunks=true\nverify_ttl=0s\nbackground_verify_interval=720h0m0s\ncipher_enabled=true\ncipher_salt=%s\ningest_queue_depth=32\n", hex.EncodeToString(salt[:]))
	return os.WriteFile(cfgPath, []byte(body), 0o644)
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a file into the repository, printing its manifest hash and asset hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			profile := chunk.Profile(profileFlag)
			if profile == "" {
				profile = r.Config.Profile()
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ing := ingest.New(r.Chunks, r.Objects, ingest.Options{
				Algo:       r.Config.Algo(),
				QueueDepth: r.Config.IngestQueueDepth,
			})

			session := ingestSession
			if session == "" {
				session = args[0] + ":" + strconv.FormatInt(time.Now().UnixNano(), 10)
			}

			result, err := ing.Ingest(cmd.Context(), session, f, profile)
			if err != nil {
				return fmt.Errorf("dits: ingest: %w", err)
			}

			fmt.Printf("manifest %s\n", result.ManifestHash)
			fmt.Printf("asset    %s\n", result.Manifest.AssetHash)
			fmt.Printf("size     %d bytes in %d chunks\n", result.Manifest.TotalSize, len(result.Manifest.Chunks))
			return nil
		},
	}
	cmd.Flags().StringVar(&profileFlag, "profile", "", "Chunking profile (generic, video_compressed, video_prores, audio); defaults to the repo's configured default")
	cmd.Flags().StringVar(&ingestSession, "session", "", "Ingest session id (defaults to a generated one); this command records no crash-recovery journal")
	return cmd
}

func reconstructCmd() *cobra.Command {
	var offset, length uint64
	cmd := &cobra.Command{
		Use:   "reconstruct <manifest-hash> <output-file>",
		Short: "Reconstruct the original bytes of a manifest to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			mh, err := hashapi.ParseHash(args[0])
			if err != nil {
				return fmt.Errorf("dits: manifest hash: %w", err)
			}
			encoded, err := r.Objects.Get(objects.KindManifest, mh)
			if err != nil {
				return fmt.Errorf("dits: load manifest: %w", err)
			}
			manifest, err := objects.DecodeManifest(encoded)
			if err != nil {
				return fmt.Errorf("dits: decode manifest: %w", err)
			}

			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			defer out.Close()

			rc := reconstruct.New(r.Chunks, r.Config.Algo())
			if length > 0 {
				return rc.ReconstructRange(manifest, offset, length, out)
			}
			return rc.Reconstruct(manifest, out)
		},
	}
	cmd.Flags().Uint64Var(&offset, "offset", 0, "Byte offset for a random-access range reconstruction")
	cmd.Flags().Uint64Var(&length, "length", 0, "Byte length for a random-access range reconstruction (0 means full reconstruct)")
	return cmd
}

func refCmd() *cobra.Command {
	resolve := &cobra.Command{
		Use:   "resolve <ref>",
		Short: "Resolve a ref (e.g. HEAD, refs/heads/main) to a hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()
			h, err := r.ResolveRef(args[0])
			if err != nil {
				return err
			}
			fmt.Println(h)
			return nil
		},
	}

	var oldHex string
	update := &cobra.Command{
		Use:   "update <ref> <new-hash>",
		Short: "Compare-and-swap a ref to a new hash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			var old hashapi.Hash
			if oldHex != "" {
				old, err = hashapi.ParseHash(oldHex)
				if err != nil {
					return fmt.Errorf("dits: --old: %w", err)
				}
			}
			newHash, err := hashapi.ParseHash(args[1])
			if err != nil {
				return fmt.Errorf("dits: new hash: %w", err)
			}
			return r.UpdateRef(args[0], old, newHash)
		},
	}
	update.Flags().StringVar(&oldHex, "old", "", "Expected current hash (hex); omit to require the ref not already exist")

	cmd := &cobra.Command{Use: "ref", Short: "Inspect and update repository refs"}
	cmd.AddCommand(resolve, update)
	return cmd
}

func commitCmd() *cobra.Command {
	var treeHex, parentsCSV, author, message, branch string
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Create a commit object over a tree and parents, and advance a branch ref to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			tree, err := hashapi.ParseHash(treeHex)
			if err != nil {
				return fmt.Errorf("dits: --tree: %w", err)
			}

			var parents []hashapi.Hash
			if parentsCSV != "" {
				for _, p := range strings.Split(parentsCSV, ",") {
					ph, err := hashapi.ParseHash(strings.TrimSpace(p))
					if err != nil {
						return fmt.Errorf("dits: --parents: %w", err)
					}
					parents = append(parents, ph)
				}
			}

			commitHash, err := r.CreateCommit(tree, parents, author, message)
			if err != nil {
				return err
			}
			fmt.Println(commitHash)

			if branch != "" {
				refName := "refs/heads/" + branch
				old, err := r.ResolveRef(refName)
				if err != nil {
					old = hashapi.Hash{}
				}
				if err := r.UpdateRef(refName, old, commitHash); err != nil {
					return fmt.Errorf("dits: advance %s: %w", refName, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&treeHex, "tree", "", "Tree hash this commit snapshots (required)")
	cmd.Flags().StringVar(&parentsCSV, "parents", "", "Comma-separated parent commit hashes")
	cmd.Flags().StringVar(&author, "author", "", "Author/committer identity string")
	cmd.Flags().StringVar(&message, "message", "", "Commit message")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to advance to the new commit (e.g. main)")
	cmd.MarkFlagRequired("tree")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print repository statistics: logical/physical bytes, chunk counts, dedup ratio",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()
			s, err := r.RepoStats()
			if err != nil {
				return err
			}
			fmt.Printf("logical_bytes        %d\n", s.LogicalBytes)
			fmt.Printf("physical_bytes        %d\n", s.PhysicalBytes)
			fmt.Printf("chunk_count           %d\n", s.ChunkCount)
			fmt.Printf("unique_chunk_count    %d\n", s.UniqueChunkCount)
			fmt.Printf("dedup_ratio           %.2f\n", s.DedupRatio)
			return nil
		},
	}
}

func fsckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fsck",
		Short: "Verify on-disk invariants: chunk integrity, refcount bounds, object self-hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()
			report, err := r.Fsck()
			if err != nil {
				return err
			}
			if report.OK {
				fmt.Println("ok")
				return nil
			}
			for _, e := range report.Errors {
				fmt.Fprintln(os.Stderr, e)
			}
			os.Exit(1)
			return nil
		},
	}
}

func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Reclaim chunks with refcount zero",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo()
			if err != nil {
				return err
			}
			defer r.Close()

			iter, err := r.Chunks.IterUnreferenced()
			if err != nil {
				return err
			}
			defer iter.Close()

			var reclaimed int
			for {
				h, ok := iter.Next()
				if !ok {
					break
				}
				if err := r.Chunks.Delete(h); err != nil {
					fmt.Fprintf(os.Stderr, "dits: gc: delete %s: %v\n", h, err)
					continue
				}
				reclaimed++
			}
			metrics.AddGCReclaimed(reclaimed)
			fmt.Printf("reclaimed %d chunks\n", reclaimed)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics over HTTP until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "", log.LstdFlags)
			metrics.SetUp(true)
			return metrics.Serve(cmd.Context(), metricsAddr, logger)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "addr", ":9090", "Listen address for the metrics HTTP server")
	return cmd
}
