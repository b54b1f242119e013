package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/archivist/internal/core/domain"
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write content into the repository",
	Long: `Write a document or a stream artifact into the repository together with
its metadata sidecar. Writing the same content twice is a no-op.`,
}

var writeDocumentCmd = &cobra.Command{
	Use:   "document [file]",
	Short: "Write a classified document",
	Long: `Write a classified document under workflows/{workflow}/{year}/.
Use "-" to read the content from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runWriteDocument,
}

var writeStreamCmd = &cobra.Command{
	Use:   "stream [file]",
	Short: "Write a stream artifact",
	Long: `Write one day of a stream (a chat channel, a mailbox digest) under
streams/{source}/{context}/{year}/. Use "-" to read the content from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runWriteStream,
}

// writeFlags holds the flags shared by both write subcommands.
type writeFlags struct {
	entity     string
	source     string
	createdAt  string
	mediaType  string
	docType    string
	subtype    string
	originJSON string
	tags       []string
	jsonOut    bool
}

var (
	writeDoc    writeFlags
	writeStream writeFlags

	docWorkflow      string
	docName          string
	docAttachments   []string
	docRelationships []string
	docCategory      string
	docConfidence    float64

	streamContext string
)

func init() {
	addWriteFlags(writeDocumentCmd, &writeDoc)
	f := writeDocumentCmd.Flags()
	f.StringVarP(&docWorkflow, "workflow", "w", "", "workflow the document was classified into")
	f.StringVar(&docName, "name", "", "base name for the file (default: derived from the creation time)")
	f.StringArrayVar(&docAttachments, "attach", nil, "attachment file (repeatable)")
	f.StringArrayVar(&docRelationships, "relationship", nil, "relationship as type=target-id (repeatable)")
	f.StringVar(&docCategory, "category", "", "classifier category")
	f.Float64Var(&docConfidence, "confidence", -1, "classifier confidence between 0 and 1")
	_ = writeDocumentCmd.MarkFlagRequired("workflow")

	addWriteFlags(writeStreamCmd, &writeStream)
	writeStreamCmd.Flags().StringVarP(&streamContext, "context", "c", "", "stream context such as a channel or mailbox")
	_ = writeStreamCmd.MarkFlagRequired("context")

	writeCmd.AddCommand(writeDocumentCmd)
	writeCmd.AddCommand(writeStreamCmd)
	rootCmd.AddCommand(writeCmd)
}

func addWriteFlags(cmd *cobra.Command, wf *writeFlags) {
	f := cmd.Flags()
	f.StringVarP(&wf.entity, "entity", "e", "", "owning entity")
	f.StringVarP(&wf.source, "source", "s", "", "producing system (mail, slack, scan...)")
	f.StringVar(&wf.createdAt, "created-at", "", "creation time in RFC 3339 (default: now)")
	f.StringVar(&wf.mediaType, "media-type", "", "content media type (default: detected)")
	f.StringVar(&wf.docType, "type", "", "document type")
	f.StringVar(&wf.subtype, "subtype", "", "document subtype")
	f.StringVar(&wf.originJSON, "origin-json", "", "file holding the origin object as JSON")
	f.StringArrayVarP(&wf.tags, "tag", "t", nil, "tag (repeatable)")
	f.BoolVar(&wf.jsonOut, "json", false, "output the result as JSON")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("source")
}

func runWriteDocument(cmd *cobra.Command, args []string) error {
	if writerService == nil {
		return errors.New("writer service not configured")
	}

	content, filename, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	common, err := writeDoc.resolve()
	if err != nil {
		return err
	}

	req := domain.DocumentRequest{
		Entity:           writeDoc.entity,
		Source:           writeDoc.source,
		Workflow:         docWorkflow,
		Name:             docName,
		OriginalFilename: filename,
		Content:          content,
		MediaType:        detectMediaType(writeDoc.mediaType, filename, content),
		CreatedAt:        common.createdAt,
		Type:             writeDoc.docType,
		Subtype:          writeDoc.subtype,
		Origin:           common.origin,
		Tags:             writeDoc.tags,
	}

	for _, r := range docRelationships {
		typ, target, ok := strings.Cut(r, "=")
		if !ok || typ == "" || target == "" {
			return fmt.Errorf("invalid relationship %q: expected type=target-id", r)
		}
		req.Relationships = append(req.Relationships, domain.Relationship{Type: typ, TargetID: target})
	}

	if docCategory != "" || docConfidence >= 0 {
		c := &domain.Classification{SuggestedWorkflow: docWorkflow, Category: docCategory}
		if docConfidence >= 0 {
			conf := docConfidence
			c.Confidence = &conf
		}
		req.Classification = c
	}

	for _, p := range docAttachments {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading attachment: %w", err)
		}
		name := filepath.Base(p)
		req.Attachments = append(req.Attachments, domain.AttachmentInput{
			Content:   data,
			MediaType: detectMediaType("", name, data),
			Filename:  name,
		})
	}

	res, err := writerService.WriteDocument(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return outputWriteResult(cmd, res, writeDoc.jsonOut)
}

func runWriteStream(cmd *cobra.Command, args []string) error {
	if writerService == nil {
		return errors.New("writer service not configured")
	}

	content, filename, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	common, err := writeStream.resolve()
	if err != nil {
		return err
	}

	res, err := writerService.WriteStream(cmd.Context(), domain.StreamRequest{
		Entity:           writeStream.entity,
		Source:           writeStream.source,
		Context:          streamContext,
		OriginalFilename: filename,
		Content:          content,
		MediaType:        detectMediaType(writeStream.mediaType, filename, content),
		CreatedAt:        common.createdAt,
		Type:             writeStream.docType,
		Subtype:          writeStream.subtype,
		Origin:           common.origin,
		Tags:             writeStream.tags,
	})
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return outputWriteResult(cmd, res, writeStream.jsonOut)
}

type resolvedWrite struct {
	createdAt time.Time
	origin    domain.Origin
}

func (wf *writeFlags) resolve() (resolvedWrite, error) {
	var out resolvedWrite
	if wf.createdAt != "" {
		t, err := time.Parse(time.RFC3339, wf.createdAt)
		if err != nil {
			return out, fmt.Errorf("invalid --created-at: %w", err)
		}
		out.createdAt = t
	}
	if wf.originJSON != "" {
		data, err := os.ReadFile(wf.originJSON)
		if err != nil {
			return out, fmt.Errorf("reading origin: %w", err)
		}
		origin, err := domain.DecodeOrigin(wf.source, data)
		if err != nil {
			return out, fmt.Errorf("decoding origin: %w", err)
		}
		out.origin = origin
	}
	return out, nil
}

// readInput reads the content file, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, "", fmt.Errorf("reading stdin: %w", err)
		}
		return data, "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading content: %w", err)
	}
	return data, filepath.Base(path), nil
}

// detectMediaType prefers an explicit type, then the file extension, then
// content sniffing.
func detectMediaType(explicit, filename string, content []byte) string {
	if explicit != "" {
		return explicit
	}
	if ext := filepath.Ext(filename); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			return mt
		}
	}
	if len(content) == 0 {
		return ""
	}
	return http.DetectContentType(content)
}

func outputWriteResult(cmd *cobra.Command, res *domain.WriteResult, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	status := "written"
	switch {
	case res.Repaired:
		status = "sidecar repaired"
	case !res.Created:
		status = "unchanged"
	}
	cmd.Printf("%s (%s)\n", res.DocumentID, status)
	cmd.Printf("  Content:  %s\n", res.ContentPath)
	cmd.Printf("  Metadata: %s\n", res.MetadataPath)
	for _, p := range res.AttachmentPaths {
		cmd.Printf("  Attached: %s\n", p)
	}
	return nil
}
