package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/geometry"
	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/exporter"
	"github.com/Faultbox/scenekit/internal/gltfexport"
	"github.com/Faultbox/scenekit/internal/loader"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

func newInfoCmd(a *app) *cobra.Command {
	var build bool
	cmd := &cobra.Command{
		Use:   "info <scene-id>",
		Short: "Show section contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			raw, err := a.assets.Fetch(cmd.Context(), a.loader.SectionPath(id))
			if err != nil {
				return err
			}
			sd, err := document.DecodeSection(raw)
			if err != nil {
				return err
			}
			doc, err := sd.Document()
			if err != nil {
				return err
			}
			printDocument(sd, doc)

			if !build {
				return nil
			}
			w, err := a.load(cmd.Context(), id)
			if err != nil {
				return err
			}
			defer w.Dispose()
			printScene(w)
			return nil
		},
	}
	cmd.Flags().BoolVar(&build, "build", false, "Also load textures and build the scene graph")
	return cmd
}

func printDocument(sd *document.SectionData, doc *document.Document) {
	objects := 0
	types := map[string]int{}
	for i := range doc.Objects {
		doc.Objects[i].Walk(func(obj *document.Object) {
			objects++
			types[obj.Type]++
		})
	}
	clips := 0
	for _, c := range doc.Animations {
		clips += len(c)
	}

	fmt.Printf("Section:    %s\n", sd.ID)
	fmt.Printf("Generator:  %s %s\n", doc.Metadata.Generator, doc.Metadata.Version)
	fmt.Printf("Geometries: %d\n", len(doc.Geometries))
	fmt.Printf("Materials:  %d\n", len(doc.Materials))
	fmt.Printf("Textures:   %d\n", len(doc.Textures))
	fmt.Printf("Skeletons:  %d\n", len(doc.Skeletons))
	fmt.Printf("Animations: %d clips on %d roots\n", clips, len(doc.Animations))
	fmt.Printf("Objects:    %d\n", objects)
	for _, t := range sortedKeys(types) {
		fmt.Printf("  %-20s %d\n", t, types[t])
	}
	if len(sd.Addons) > 0 {
		fmt.Printf("Addons:     %s\n", strings.Join(sortedKeys(sd.Addons), ", "))
	}

	if err := doc.Validate(); err != nil {
		errs := multierr.Errors(err)
		fmt.Printf("\nProblems (%d):\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  %v\n", e)
		}
	}
}

func printScene(w *loader.SceneWrapper) {
	nodes, meshes, vertices := 0, 0, 0
	w.Scene.Traverse(func(n *scene.Node) {
		nodes++
		if n.Mesh != nil && n.Mesh.Geometry != nil {
			meshes++
			vertices += n.Mesh.Geometry.VertexCount()
		}
	})
	fmt.Printf("\nBuilt %d nodes, %d meshes, %d vertices\n", nodes-1, meshes, vertices)
	fmt.Printf("Textures loaded: %d\n", len(w.Textures().IDs()))
	for _, p := range w.Players() {
		fmt.Printf("Player %s: %d clips\n", p.Root.UUID, len(p.Clips))
	}
	if err := w.Diagnostics(); err != nil {
		errs := multierr.Errors(err)
		fmt.Printf("\nBuild problems (%d):\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  %v\n", e)
		}
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <scene-id> <output>",
		Short: "Load a section and write it back out",
		Long:  "Loads a section, builds it and re-serializes the live scene. Output ending in .gz is always compressed.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer w.Dispose()

			sd, err := exporter.Wrapper(w)
			if sd == nil {
				return err
			}
			if err != nil {
				logger.Warn("export incomplete", zap.Error(err))
			}

			f, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			compress := a.cfg.Export.Gzip || strings.HasSuffix(args[1], ".gz")
			if err := document.EncodeSection(f, sd, compress, a.cfg.Export.Indent); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", args[1])
			return nil
		},
	}
}

func newGLTFCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "gltf <scene-id> <output.glb>",
		Short: "Convert a section to binary glTF",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer w.Dispose()

			gw := gltfexport.NewWriter()
			gw.AddScene(w.Scene.Children())
			if err := gw.Save(args[1]); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", args[1])
			return nil
		},
	}
}

func newColliderCmd(a *app) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "collider <scene-id> <output.glb>",
		Short: "Bake the scene meshes into one world-space collision mesh",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := a.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer w.Dispose()

			var parts []geometry.Placed
			w.Scene.Traverse(func(n *scene.Node) {
				if n.Mesh == nil || n.Mesh.Geometry == nil || !strings.HasPrefix(n.Name, prefix) {
					return
				}
				parts = append(parts, geometry.Placed{Geometry: n.Mesh.Geometry, Matrix: n.MatrixWorld})
			})
			merged := geometry.MergePositions(args[0]+"-collider", parts)
			fmt.Printf("Merged %d meshes, %d vertices\n", len(parts), merged.VertexCount())

			gw := gltfexport.NewWriter()
			if err := gw.AddGeometry("collider", merged, math.Identity()); err != nil {
				return err
			}
			if err := gw.Save(args[1]); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only include meshes whose name has this prefix")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <scene-id>",
		Short: "Rebuild a section whenever its file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			rel := a.loader.SectionPath(id)
			file := filepath.Join(a.cfg.Assets.BasePath, filepath.FromSlash(rel))

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("creating watcher: %w", err)
			}
			defer watcher.Close()
			if err := watcher.Add(filepath.Dir(file)); err != nil {
				return fmt.Errorf("watching %s: %w", filepath.Dir(file), err)
			}

			var current *loader.SceneWrapper
			reload := func() {
				a.assets.Invalidate(rel)
				w, err := a.load(cmd.Context(), id)
				if err != nil {
					logger.Warn("reload failed", zap.String("scene", id), zap.Error(err))
					return
				}
				if current != nil {
					current.Dispose()
				}
				current = w
				printScene(w)
			}
			defer func() {
				if current != nil {
					current.Dispose()
				}
			}()

			reload()
			fmt.Printf("Watching %s\n", file)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != filepath.Clean(file) {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
						logger.Info("section changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
						reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					logger.Warn("watch error", zap.Error(err))
				}
			}
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
