package scaffold

// EntryTemplate is the entry file written when the source root has no
// _template directory.
const EntryTemplate = `import React from "react";
import { createRoot, type Root } from "react-dom/client";

export type {{SYMBOL}}Props = {
  title?: string;
};

function {{SYMBOL}}({ title = "{{TITLE}}" }: {{SYMBOL}}Props) {
  return <div className="{{NAME}}">{title}</div>;
}

let root: Root | undefined;

export function mount(el: HTMLElement, props: {{SYMBOL}}Props = {}) {
  root = createRoot(el);
  root.render(<{{SYMBOL}} {...props} />);
}

export function unmount() {
  root?.unmount();
  root = undefined;
}
`

// ReadmeTemplate is the README written next to the built-in entry file.
const ReadmeTemplate = `# {{TITLE}}

Widget ` + "`{{NAME}}`" + `, exposed to embedding pages as ` + "`window.{{SYMBOL}}`" + `.

    widgetkit build --only {{NAME}}
`
