package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rkoyama/glmbot/internal/model"
)

func init() {
	memoryCmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage long-lived memories",
	}
	memoryCmd.PersistentFlags().StringP("actor", "a", "", "Owning actor ID (required)")
	memoryCmd.MarkPersistentFlagRequired("actor")

	remember := &cobra.Command{
		Use:   "remember [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runRemember,
	}
	remember.Flags().String("category", "", "Category label")
	remember.Flags().StringP("tags", "t", "", "Comma-separated tags")
	remember.Flags().String("meta", "", "JSON object of metadata")

	recall := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search memories by keyword",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}
	recall.Flags().IntP("limit", "l", 5, "Max results")

	list := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Run:   runMemoryList,
	}
	list.Flags().String("category", "", "Filter by category")
	list.Flags().Int("offset", 0, "Pagination offset")
	list.Flags().IntP("limit", "l", 20, "Max results")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Rewrite a memory's content or category",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryUpdate,
	}
	update.Flags().String("content", "", "New content")
	update.Flags().String("category", "", "New category")

	forget := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete one memory",
		Args:  cobra.ExactArgs(1),
		Run:   runForget,
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Dump all memories for an actor as JSON",
		Run:   runMemoryExport,
	}

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import memories from a JSON export (new IDs assigned)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runMemoryImport,
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all memories for an actor",
		Run:   runMemoryClear,
	}

	memoryCmd.AddCommand(remember, recall, list, update, forget, export, importCmd, clear)
	RootCmd.AddCommand(memoryCmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")
	category, _ := cmd.Flags().GetString("category")
	tagsStr, _ := cmd.Flags().GetString("tags")
	metaStr, _ := cmd.Flags().GetString("meta")

	var meta map[string]string
	if metaStr != "" {
		if err := json.Unmarshal([]byte(metaStr), &meta); err != nil {
			exitErr("parse meta", err)
		}
	}

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}

	s := openStore(loadConfig())
	defer s.Close()

	rec, err := s.Remember(cmd.Context(), actor, strings.TrimSpace(content), category, splitTags(tagsStr), meta)
	if err != nil {
		exitErr("remember", err)
	}
	printJSON(rec)
}

func runRecall(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")
	limit, _ := cmd.Flags().GetInt("limit")

	s := openStore(loadConfig())
	defer s.Close()

	records, err := s.Recall(cmd.Context(), actor, strings.Join(args, " "), limit)
	if err != nil {
		exitErr("recall", err)
	}
	printJSON(records)
}

func runMemoryList(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")
	category, _ := cmd.Flags().GetString("category")
	offset, _ := cmd.Flags().GetInt("offset")
	limit, _ := cmd.Flags().GetInt("limit")

	s := openStore(loadConfig())
	defer s.Close()

	records, err := s.ListMemories(cmd.Context(), actor, category, offset, limit)
	if err != nil {
		exitErr("list", err)
	}
	printJSON(records)
}

func runMemoryUpdate(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")
	content, _ := cmd.Flags().GetString("content")
	category, _ := cmd.Flags().GetString("category")

	s := openStore(loadConfig())
	defer s.Close()

	rec, err := s.UpdateMemory(cmd.Context(), actor, args[0], content, category)
	if err != nil {
		exitErr("update", err)
	}
	printJSON(rec)
}

func runForget(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")

	s := openStore(loadConfig())
	defer s.Close()

	if err := s.Forget(cmd.Context(), actor, args[0]); err != nil {
		exitErr("forget", err)
	}
	fmt.Println("forgotten")
}

func runMemoryExport(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")

	s := openStore(loadConfig())
	defer s.Close()

	records, err := s.ExportMemories(cmd.Context(), actor)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(records)
}

func runMemoryImport(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")

	var data []byte
	var err error
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read import", err)
	}

	var records []model.MemoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse import", err)
	}

	s := openStore(loadConfig())
	defer s.Close()

	n, err := s.ImportMemories(cmd.Context(), actor, records)
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf("imported %d memories\n", n)
}

func runMemoryClear(cmd *cobra.Command, args []string) {
	actor, _ := cmd.Flags().GetString("actor")

	s := openStore(loadConfig())
	defer s.Close()

	n, err := s.ClearMemories(cmd.Context(), actor)
	if err != nil {
		exitErr("clear", err)
	}
	fmt.Printf("cleared %d memories\n", n)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
