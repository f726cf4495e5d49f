// Package luahost runs user Lua scripts as a layout change consumer.
//
// A Runtime owns one gopher-lua state. gopher-lua states are not safe for
// concurrent use, so every interaction with the state happens on the
// consumer loop: scripts are loaded through the Executor and layout change
// callbacks are delivered by the same loop. Scripts see a global
// "keyboard" module:
//
//	keyboard.on_did_change_layout(function()
//	  local l = keyboard.current_layout()
//	  print("layout is now " .. l.name)
//	end)
//
//	if keyboard.is_iso_keyboard() then
//	  print("ISO keyboard")
//	end
//
// on_did_change_layout returns true, or false and a message when the
// platform subscription could not be established. A later call retries.
package luahost
