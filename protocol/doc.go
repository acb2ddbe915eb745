// This package implements the document model for the uid-message protocol
// that Herald uses to push user-to-address mappings and address tags to a
// firewall's User-ID management API.
//
// A uid-message is a small XML document with a fixed envelope and a payload
// holding up to four sections, one per operation kind:
//
//   ```
//   <uid-message>
//     <version>1.0</version>
//     <type>update</type>
//     <payload>
//       <login>
//         <entry name="jdoe" ip="10.0.1.1"/>
//       </login>
//       <logout>
//         <entry name="jdoe" ip="10.0.1.2"/>
//       </logout>
//       <register>
//         <entry ip="10.0.2.1">
//           <tag>
//             <member>grp-linux</member>
//           </tag>
//         </entry>
//       </register>
//       <unregister>
//         <entry ip="10.0.2.2">
//           <tag>
//             <member>grp-quarantine</member>
//           </tag>
//         </entry>
//       </unregister>
//     </payload>
//   </uid-message>
//   ```
//
// Sections are created lazily and omitted from the serialized document while
// they hold no entries.
//
// The two section shapes have different semantics
//
// - `login`/`logout` entries are an ordered list of (name, ip) pairs. They
//   are never deduplicated; appending the same pair twice yields two
//   entries, mirroring two separate operations on the device.
// - `register`/`unregister` entries are keyed by ip. There is at most one
//   entry per distinct address in a section, and its tag members form a
//   deduplicated set that preserves first-insertion order.
//
// The package also knows how to build the operational command used to query
// currently registered addresses, and how to parse its result. Devices
// older than 6.1.0 answer only the legacy `show object registered-address`
// verb; newer ones use `show object registered-ip`.
package protocol
